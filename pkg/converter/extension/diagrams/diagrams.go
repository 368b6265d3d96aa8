// Package diagrams renders diagram code blocks to SVG files next to the
// section output and replaces each block with an image pointing at the file.
package diagrams

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stackvity/book-converter/pkg/converter/document"
	"github.com/stackvity/book-converter/pkg/converter/extension"
)

const Name = "diagrams"

// DefaultClasses maps code block classes to renderer formats.
var DefaultClasses = map[string]string{"dot": "dot", "graphviz": "dot"}

type diagrams struct {
	extension.Base
	renderer extension.Renderer
	classes  map[string]string
	rendered int
}

// New is the registry constructor. It needs env.Renderer.
func New(env extension.Env) (extension.Extension, error) {
	if env.Renderer == nil {
		return nil, errors.New("no diagram renderer configured")
	}
	classes := DefaultClasses
	if list := env.Manifest.StringsSetting(Name, "classes", nil); len(list) > 0 {
		classes = make(map[string]string, len(list))
		for _, c := range list {
			classes[c] = c
		}
	}
	return &diagrams{renderer: env.Renderer, classes: classes}, nil
}

func (d *diagrams) Name() string { return Name }

func (d *diagrams) format(n *document.Node) (string, bool) {
	if n.Kind != document.KindCodeBlock || n.Attr == nil {
		return "", false
	}
	for _, c := range n.Attr.Classes {
		if f, ok := d.classes[c]; ok {
			return f, true
		}
	}
	return "", false
}

func (d *diagrams) PostProcessFile(ctx context.Context, doc *document.Document, file extension.File) error {
	outDir := filepath.Dir(file.OutputPath)
	var renderErr error
	doc.MapBlocks(func(list []*document.Node) []*document.Node {
		if renderErr != nil {
			return list
		}
		for i, n := range list {
			format, ok := d.format(n)
			if !ok {
				continue
			}
			img, err := d.render(ctx, outDir, format, n)
			if err != nil {
				renderErr = fmt.Errorf("diagram in %s: %w", file.Path, err)
				return list
			}
			list[i] = img
		}
		return list
	})
	return renderErr
}

func (d *diagrams) render(ctx context.Context, outDir, format string, n *document.Node) (*document.Node, error) {
	sum := sha256.Sum256([]byte(format + "\x00" + n.Text))
	name := "diagram-" + hex.EncodeToString(sum[:8]) + ".svg"

	svg, err := d.renderer.Render(ctx, format, []byte(n.Text))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(outDir, name), svg, 0644); err != nil {
		return nil, err
	}
	d.rendered++

	img := &document.Node{Kind: document.KindImage, Target: name, Attr: n.Attr}
	if caption := n.Attr.Get("caption"); caption != "" {
		img.Inlines = []*document.Node{document.Str(caption)}
		img.Title = caption
	}
	return &document.Node{Kind: document.KindPara, Inlines: []*document.Node{img}}, nil
}

func (d *diagrams) ManifestFields() map[string]any {
	return map[string]any{"diagrams": map[string]int{"rendered": d.rendered}}
}
