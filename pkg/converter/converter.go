// Package converter turns a multi-language book source tree into JSON
// documents. A producer walks the tree and queues one job per section,
// page and fragment; a pool of consumers parses each job, runs the
// configured extensions over the document and writes the result.
package converter

import (
	"context"
)

// Convert builds an Engine from opts and runs it once.
func Convert(ctx context.Context, opts Options) (Report, error) {
	engine, err := NewEngine(opts)
	if err != nil {
		return Report{}, err
	}
	return engine.Run(ctx)
}
