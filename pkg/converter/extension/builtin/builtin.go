// Package builtin registers the extensions shipped with book-converter.
package builtin

import (
	"github.com/stackvity/book-converter/pkg/converter/extension"
	"github.com/stackvity/book-converter/pkg/converter/extension/codelang"
	"github.com/stackvity/book-converter/pkg/converter/extension/diagrams"
	"github.com/stackvity/book-converter/pkg/converter/extension/gitinfo"
	"github.com/stackvity/book-converter/pkg/converter/extension/indexterms"
	"github.com/stackvity/book-converter/pkg/converter/extension/numbering"
	"github.com/stackvity/book-converter/pkg/converter/extension/sanitize"
	"github.com/stackvity/book-converter/pkg/converter/extension/textjoin"
)

// Registry returns a new registry holding every built-in extension.
func Registry() *extension.Registry {
	r := extension.NewRegistry()
	r.MustRegister(codelang.Name, codelang.New)
	r.MustRegister(diagrams.Name, diagrams.New)
	r.MustRegister(gitinfo.Name, gitinfo.New)
	r.MustRegister(indexterms.Name, indexterms.New)
	r.MustRegister(numbering.Name, numbering.New)
	r.MustRegister(sanitize.Name, sanitize.New)
	r.MustRegister(textjoin.Name, textjoin.New)
	return r
}
