// Package codelang adds a language class to code blocks that lack one.
package codelang

import (
	"context"
	"log/slog"

	"github.com/stackvity/book-converter/pkg/converter/document"
	"github.com/stackvity/book-converter/pkg/converter/extension"
	"github.com/stackvity/book-converter/pkg/converter/language"
)

const Name = "codelang"

type codeLang struct {
	extension.Base
	detector language.Detector
	logger   *slog.Logger
	detected map[string]int
}

// New is the registry constructor. Settings: "threshold" (number),
// "candidates" (list of language names).
func New(env extension.Env) (extension.Extension, error) {
	threshold := language.DefaultThreshold
	if v, ok := env.Manifest.Setting(Name, "threshold"); ok {
		switch f := v.(type) {
		case float64:
			threshold = f
		case int:
			threshold = float64(f)
		}
	}
	candidates := env.Manifest.StringsSetting(Name, "candidates", nil)
	return NewWithDetector(env, language.NewEnryDetector(threshold, nil, candidates)), nil
}

// NewWithDetector builds the extension around d.
func NewWithDetector(env extension.Env, d language.Detector) extension.Extension {
	h := env.Logger
	if h == nil {
		h = slog.Default().Handler()
	}
	return &codeLang{
		detector: d,
		logger:   slog.New(h).With(slog.String("component", Name)),
		detected: make(map[string]int),
	}
}

func (c *codeLang) Name() string { return Name }

func (c *codeLang) PostProcessFile(_ context.Context, doc *document.Document, file extension.File) error {
	return document.Walk(doc.Blocks, func(n, _ *document.Node) error {
		if n.Kind != document.KindCodeBlock {
			return nil
		}
		if n.Attr != nil && len(n.Attr.Classes) > 0 {
			return nil
		}
		hint := ""
		if n.Attr != nil {
			hint = n.Attr.Get("file")
		}
		lang, conf := c.detector.Detect([]byte(n.Text), hint)
		if lang == "" {
			return nil
		}
		if n.Attr == nil {
			n.Attr = &document.Attr{}
		}
		n.Attr.Classes = append(n.Attr.Classes, lang)
		n.SetData("detectedLanguage", map[string]any{"language": lang, "confidence": conf})
		c.detected[lang]++
		c.logger.Debug("Detected code block language", slog.String("path", file.Path), slog.String("language", lang))
		return nil
	})
}

func (c *codeLang) ManifestFields() map[string]any {
	if len(c.detected) == 0 {
		return nil
	}
	return map[string]any{"codeLanguages": c.detected}
}
