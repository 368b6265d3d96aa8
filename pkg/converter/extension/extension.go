// Package extension defines the lifecycle contract of conversion extensions,
// the Set that dispatches hook calls to them, and the Registry that builds
// them by name.
//
// Hook order for one run:
//
//	Start                          once, before the first language
//	PreConversion(lang)            once per language, before its files are queued
//	PreProcessFile(file)           once per file, right before it is parsed
//	PostProcessFile(doc, file)     once per file, after parsing and before it is written
//	PostConversion(lang)           once per language, after its files are queued
//	Finish                         once, after every file has been processed
//
// ManifestFields is read after Finish.
package extension

import (
	"context"
	"errors"

	"github.com/stackvity/book-converter/pkg/converter/document"
)

// ErrExtensionHook wraps every error returned by an extension hook.
var ErrExtensionHook = errors.New("extension hook failed")

// File describes the file a per-file hook is called for.
type File struct {
	// Path is the source path relative to the source root, slash separated.
	Path string
	// SourcePath is the absolute source path.
	SourcePath string
	// OutputPath is the absolute path the document will be written to.
	OutputPath string
	Language   string
	// ID is the section id (directory path below the language root) or the
	// page/fragment name.
	ID string
	// Kind is "section", "page" or "fragment".
	Kind string
	// Seq is the position of the file in the queueing order of the run.
	Seq int
	// Worker identifies the consumer running the file's hooks; the pre and
	// post hooks of one file always share it.
	Worker int
}

// Extension observes a conversion run and may rewrite parsed documents.
//
// Hooks are never called concurrently on the same run. Unless ordered
// hooks are disabled, PostProcessFile sees files in queueing order.
type Extension interface {
	Name() string
	Start(ctx context.Context, destRoot, sourceRoot string) error
	PreConversion(ctx context.Context, lang string) error
	PreProcessFile(ctx context.Context, file File) error
	PostProcessFile(ctx context.Context, doc *document.Document, file File) error
	PostConversion(ctx context.Context, lang string) error
	Finish(ctx context.Context) error
	ManifestFields() map[string]any
}

// Base implements every hook as a no-op. Embed it and override what you need.
type Base struct{}

func (Base) Start(context.Context, string, string) error {
	return nil
}

func (Base) PreConversion(context.Context, string) error {
	return nil
}

func (Base) PreProcessFile(context.Context, File) error {
	return nil
}

func (Base) PostProcessFile(context.Context, *document.Document, File) error {
	return nil
}

func (Base) PostConversion(context.Context, string) error {
	return nil
}

func (Base) Finish(context.Context) error {
	return nil
}

func (Base) ManifestFields() map[string]any {
	return nil
}

// Renderer turns diagram source into an image. format names the diagram
// language ("dot", ...); the result is SVG.
type Renderer interface {
	Render(ctx context.Context, format string, source []byte) ([]byte, error)
}
