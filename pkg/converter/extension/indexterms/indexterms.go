// Package indexterms collects index entries marked in the text and writes
// one index.json per language, sorted with the collation rules of that
// language.
//
// An index entry is a span with class "index". The term is the span's
// "term" attribute or, without one, its text. Spans without an id get a
// generated anchor so the index can link to them.
package indexterms

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/stackvity/book-converter/pkg/converter/document"
	"github.com/stackvity/book-converter/pkg/converter/extension"
)

const Name = "indexterms"

// Reference points at one occurrence of a term.
type Reference struct {
	Section string `json:"section"`
	Anchor  string `json:"anchor"`
}

// Entry is one term of a language index.
type Entry struct {
	Term       string      `json:"term"`
	References []Reference `json:"references"`
}

type indexTerms struct {
	extension.Base
	class    string
	fileName string

	destRoot string
	terms    map[string]map[string][]Reference
	anchors  int
}

// New is the registry constructor.
func New(env extension.Env) (extension.Extension, error) {
	return &indexTerms{
		class:    env.Manifest.StringSetting(Name, "class", "index"),
		fileName: env.Manifest.StringSetting(Name, "file", "index.json"),
		terms:    make(map[string]map[string][]Reference),
	}, nil
}

func (x *indexTerms) Name() string { return Name }

func (x *indexTerms) Start(_ context.Context, destRoot, _ string) error {
	x.destRoot = destRoot
	return nil
}

func (x *indexTerms) PostProcessFile(_ context.Context, doc *document.Document, file extension.File) error {
	return document.Walk(doc.Blocks, func(n, _ *document.Node) error {
		if n.Kind != document.KindSpan || !n.Attr.HasClass(x.class) {
			return nil
		}
		term := n.Attr.Get("term")
		if term == "" {
			term = document.PlainText(n.Inlines)
		}
		if term == "" {
			return document.SkipChildren
		}
		if n.Attr.ID == "" {
			x.anchors++
			n.Attr.ID = fmt.Sprintf("idx-%d", x.anchors)
		}
		byTerm := x.terms[file.Language]
		if byTerm == nil {
			byTerm = make(map[string][]Reference)
			x.terms[file.Language] = byTerm
		}
		byTerm[term] = append(byTerm[term], Reference{Section: file.ID, Anchor: n.Attr.ID})
		return document.SkipChildren
	})
}

// Sorted returns the entries of one language in collation order.
func Sorted(lang string, byTerm map[string][]Reference) []Entry {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.Und
	}
	col := collate.New(tag, collate.IgnoreCase)

	terms := make([]string, 0, len(byTerm))
	for t := range byTerm {
		terms = append(terms, t)
	}
	col.SortStrings(terms)

	entries := make([]Entry, 0, len(terms))
	for _, t := range terms {
		refs := append([]Reference(nil), byTerm[t]...)
		sort.SliceStable(refs, func(i, j int) bool { return refs[i].Section < refs[j].Section })
		entries = append(entries, Entry{Term: t, References: refs})
	}
	return entries
}

// Files of a language may still be in flight at PostConversion when hooks
// are unordered, so indexes are written once at the end.
func (x *indexTerms) Finish(context.Context) error {
	for lang, byTerm := range x.terms {
		data, err := json.MarshalIndent(Sorted(lang, byTerm), "", "  ")
		if err != nil {
			return err
		}
		dir := filepath.Join(x.destRoot, lang)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, x.fileName), data, 0644); err != nil {
			return err
		}
	}
	return nil
}

func (x *indexTerms) ManifestFields() map[string]any {
	if len(x.terms) == 0 {
		return nil
	}
	counts := make(map[string]int, len(x.terms))
	for lang, byTerm := range x.terms {
		counts[lang] = len(byTerm)
	}
	return map[string]any{"indexTerms": counts}
}
