// Package textjoin collapses runs of adjacent text and space nodes into a
// single text node, which keeps content.json small.
package textjoin

import (
	"context"
	"strings"

	"github.com/stackvity/book-converter/pkg/converter/document"
	"github.com/stackvity/book-converter/pkg/converter/extension"
)

const Name = "textjoin"

type textJoin struct {
	extension.Base
	joined int
}

// New is the registry constructor.
func New(extension.Env) (extension.Extension, error) { return &textJoin{}, nil }

func (j *textJoin) Name() string { return Name }

func (j *textJoin) PostProcessFile(_ context.Context, doc *document.Document, _ extension.File) error {
	return document.Walk(doc.Blocks, func(n, _ *document.Node) error {
		if len(n.Inlines) > 1 {
			n.Inlines = j.join(n.Inlines)
		}
		return nil
	})
}

func isText(n *document.Node) bool {
	return n != nil && (n.Kind == document.KindStr || n.Kind == document.KindSpace || n.Kind == document.KindSoftBreak)
}

// join merges each maximal run of Str/Space/SoftBreak nodes. Nodes that are
// not plain text are kept as they are.
func (j *textJoin) join(in []*document.Node) []*document.Node {
	out := make([]*document.Node, 0, len(in))
	for i := 0; i < len(in); {
		if !isText(in[i]) {
			out = append(out, in[i])
			i++
			continue
		}
		start := i
		var b strings.Builder
		for ; i < len(in) && isText(in[i]); i++ {
			if in[i].Kind == document.KindStr {
				b.WriteString(in[i].Text)
			} else {
				b.WriteByte(' ')
			}
		}
		if i-start == 1 {
			out = append(out, in[start])
			continue
		}
		j.joined += i - start - 1
		out = append(out, document.Str(b.String()))
	}
	return out
}

func (j *textJoin) ManifestFields() map[string]any {
	return map[string]any{"textJoin": map[string]int{"mergedNodes": j.joined}}
}
