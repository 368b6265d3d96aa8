// Package language guesses the programming language of code snippets.
package language

import (
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// Confidence scores returned by Detect.
const (
	ConfidenceOverride = 1.0
	ConfidenceHeader   = 0.9
	ConfidenceFilename = 0.8
	// ConfidenceContent is go-enry's combined verdict for a snippet whose
	// file name alone was ambiguous.
	ConfidenceContent = 0.7
	// ConfidenceClassifier is below DefaultThreshold: a bare Bayesian guess
	// over a short snippet is wrong too often to apply unless asked for.
	ConfidenceClassifier = 0.3
)

// DefaultThreshold drops classifier-only guesses.
const DefaultThreshold = 0.5

// DefaultCandidates are the languages the content classifier chooses from.
var DefaultCandidates = []string{
	"C", "C++", "C#", "CSS", "Go", "HTML", "Java", "JavaScript", "JSON", "Kotlin",
	"Python", "Ruby", "Rust", "Shell", "SQL", "TypeScript", "YAML",
}

// Detector guesses the language of a code block.
type Detector interface {
	// Detect returns a lowercase language id, or "" when nothing reached the
	// confidence threshold. hint is an optional file name attached to the
	// snippet.
	Detect(code []byte, hint string) (lang string, confidence float64)
}

type enryDetector struct {
	threshold  float64
	overrides  map[string]string
	candidates []string
}

// NewEnryDetector returns a go-enry backed Detector. overrides maps file
// extensions to language ids; results below threshold are dropped.
func NewEnryDetector(threshold float64, overrides map[string]string, candidates []string) Detector {
	normalized := make(map[string]string, len(overrides))
	for ext, lang := range overrides {
		ext = strings.ToLower(strings.TrimSpace(ext))
		lang = strings.ToLower(strings.TrimSpace(lang))
		if ext == "" || ext == "." || lang == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[ext] = lang
	}
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	return &enryDetector{threshold: threshold, overrides: normalized, candidates: candidates}
}

func (d *enryDetector) accept(lang string, confidence float64) (string, float64) {
	if lang == "" || lang == "Text" || confidence < d.threshold {
		return "", 0
	}
	return strings.ToLower(lang), confidence
}

func (d *enryDetector) Detect(code []byte, hint string) (string, float64) {
	if hint != "" {
		if lang, ok := d.overrides[strings.ToLower(filepath.Ext(hint))]; ok {
			return lang, ConfidenceOverride
		}
		if lang, safe := enry.GetLanguageByExtension(hint); safe {
			return d.accept(lang, ConfidenceFilename)
		}
		if lang, safe := enry.GetLanguageByFilename(hint); safe {
			return d.accept(lang, ConfidenceFilename)
		}
	}
	if len(code) == 0 {
		return "", 0
	}
	if lang, safe := enry.GetLanguageByShebang(code); safe {
		return d.accept(lang, ConfidenceHeader)
	}
	if lang, safe := enry.GetLanguageByModeline(code); safe {
		return d.accept(lang, ConfidenceHeader)
	}
	if lang := enry.GetLanguage(hint, code); lang != "" && lang != "Text" {
		return d.accept(lang, ConfidenceContent)
	}
	if d.threshold > ConfidenceClassifier {
		return "", 0
	}
	if langs := enry.GetLanguagesByClassifier(hint, code, d.candidates); len(langs) > 0 {
		return d.accept(langs[0], ConfidenceClassifier)
	}
	return "", 0
}
