// Package parser defines the contract between the conversion pipeline and the
// external single-document parser, and decodes the pandoc JSON AST into a
// document.Document.
package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/stackvity/book-converter/pkg/converter/document"
)

// ErrConversion matches every *ConversionError.
var ErrConversion = errors.New("conversion failed")

// ConversionError reports a source document that could not be turned into a
// node tree: malformed input, a failing parser process, or missing metadata.
type ConversionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("cannot convert %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Err }

func (e *ConversionError) Is(target error) bool { return target == ErrConversion }

// Errorf builds a ConversionError for path.
func Errorf(path string, err error, format string, args ...any) *ConversionError {
	return &ConversionError{Path: path, Reason: fmt.Sprintf(format, args...), Err: err}
}

// Parser turns one source file into a document. Implementations must be safe
// for concurrent use.
type Parser interface {
	Parse(ctx context.Context, path string) (*document.Document, error)
}

// Identifier is implemented by parsers whose output depends on more than the
// source bytes (tool version, input format). The identity is part of the
// parse cache key.
type Identifier interface {
	Identity() string
}

// Func adapts a function to the Parser interface.
type Func func(ctx context.Context, path string) (*document.Document, error)

func (f Func) Parse(ctx context.Context, path string) (*document.Document, error) {
	return f(ctx, path)
}
