// Package sanitize strips unsafe markup from raw HTML embedded in documents.
package sanitize

import (
	"context"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/stackvity/book-converter/pkg/converter/document"
	"github.com/stackvity/book-converter/pkg/converter/extension"
)

const Name = "sanitize"

type sanitize struct {
	extension.Base
	policy  *bluemonday.Policy
	changed int
}

// New is the registry constructor. Setting "policy": "ugc" (default) or "strict".
func New(env extension.Env) (extension.Extension, error) {
	var p *bluemonday.Policy
	switch name := env.Manifest.StringSetting(Name, "policy", "ugc"); name {
	case "ugc":
		p = bluemonday.UGCPolicy()
	case "strict":
		p = bluemonday.StrictPolicy()
	default:
		return nil, fmt.Errorf("unknown sanitize policy %q", name)
	}
	return &sanitize{policy: p}, nil
}

func (s *sanitize) Name() string { return Name }

func (s *sanitize) PostProcessFile(_ context.Context, doc *document.Document, _ extension.File) error {
	return document.Walk(doc.Blocks, func(n, _ *document.Node) error {
		if n.Kind != document.KindRawBlock && n.Kind != document.KindRawInline {
			return nil
		}
		if !strings.EqualFold(n.Format, "html") {
			return nil
		}
		clean := s.policy.Sanitize(n.Text)
		if clean != n.Text {
			s.changed++
			n.Text = clean
		}
		return nil
	})
}

func (s *sanitize) ManifestFields() map[string]any {
	return map[string]any{"sanitize": map[string]int{"changed": s.changed}}
}
