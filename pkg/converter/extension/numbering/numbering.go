// Package numbering numbers sections and the boxes inside them.
//
// Section numbers follow the position of a section among its siblings
// ("2", "2.1", ...). Divs carrying one of the configured classes are
// numbered per class within their section ("2.1-1", ...). Numbers are stored
// in node data under "number"; the section number goes to the document
// metadata.
package numbering

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stackvity/book-converter/pkg/converter/document"
	"github.com/stackvity/book-converter/pkg/converter/extension"
)

const Name = "numbering"

// DefaultClasses are the div classes numbered when no "classes" setting is given.
var DefaultClasses = []string{"box", "card", "exercise"}

type numbering struct {
	extension.Base
	classes map[string]bool

	counters []int
	total    map[string]int
}

// New is the registry constructor.
func New(env extension.Env) (extension.Extension, error) {
	n := &numbering{classes: make(map[string]bool), total: make(map[string]int)}
	for _, c := range env.Manifest.StringsSetting(Name, "classes", DefaultClasses) {
		n.classes[c] = true
	}
	return n, nil
}

func (n *numbering) Name() string { return Name }

func (n *numbering) PreConversion(_ context.Context, lang string) error {
	n.counters = n.counters[:0]
	return nil
}

// sectionNumber advances the counters for a section id and returns its number.
// It relies on sections arriving in walk order.
func (n *numbering) sectionNumber(id string) string {
	depth := strings.Count(id, "/") + 1
	for len(n.counters) < depth {
		n.counters = append(n.counters, 0)
	}
	n.counters = n.counters[:depth]
	n.counters[depth-1]++
	parts := make([]string, depth)
	for i, c := range n.counters {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ".")
}

func (n *numbering) PostProcessFile(_ context.Context, doc *document.Document, file extension.File) error {
	if file.Kind != "section" {
		return nil
	}
	secNum := n.sectionNumber(file.ID)
	if doc.Meta == nil {
		doc.Meta = make(map[string]any)
	}
	doc.Meta["number"] = secNum

	perClass := make(map[string]int)
	return document.Walk(doc.Blocks, func(node, _ *document.Node) error {
		if node.Kind != document.KindDiv || node.Attr == nil {
			return nil
		}
		for _, c := range node.Attr.Classes {
			if !n.classes[c] {
				continue
			}
			perClass[c]++
			n.total[file.Language+"/"+c]++
			node.SetData("number", fmt.Sprintf("%s-%d", secNum, perClass[c]))
			break
		}
		return nil
	})
}

func (n *numbering) ManifestFields() map[string]any {
	if len(n.total) == 0 {
		return nil
	}
	counts := make(map[string]int, len(n.total))
	for k, v := range n.total {
		counts[k] = v
	}
	return map[string]any{"numbering": counts}
}
