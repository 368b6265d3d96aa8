package converter

import (
	"errors"
	"fmt"

	"github.com/stackvity/book-converter/pkg/converter/extension"
	"github.com/stackvity/book-converter/pkg/converter/manifest"
	"github.com/stackvity/book-converter/pkg/converter/parser"
)

// Errors returned by Convert and Engine.Run. Check them with errors.Is.
var (
	// ErrStructuralInconsistency matches every *StructuralInconsistencyError.
	ErrStructuralInconsistency = errors.New("structural inconsistency")

	// ErrCancelled matches every *CancellationError.
	ErrCancelled = errors.New("run cancelled")

	// ErrConfigValidation indicates invalid Options.
	ErrConfigValidation = errors.New("configuration validation failed")

	// ErrOutputNotEmpty is returned when the output directory has content
	// and ForceOverwrite is off.
	ErrOutputNotEmpty = errors.New("output directory is not empty")

	// ErrOutputLocked is returned when another run holds the output lock.
	ErrOutputLocked = errors.New("output directory is locked by another run")

	// ErrJobsFailed is returned when at least one job failed and OnErrorMode
	// is fail or stop.
	ErrJobsFailed = errors.New("one or more jobs failed")

	// ErrWriteFailed indicates an output file could not be written.
	ErrWriteFailed = errors.New("failed to write output file")

	// ErrMkdirFailed indicates an output directory could not be created.
	ErrMkdirFailed = errors.New("failed to create output directory")

	// ErrReadFailed indicates a source file could not be read.
	ErrReadFailed = errors.New("failed to read source file")
)

// Errors defined by subpackages, re-exported for callers of this package.
var (
	ErrConversion       = parser.ErrConversion
	ErrUnknownExtension = extension.ErrUnknownExtension
	ErrExtensionHook    = extension.ErrExtensionHook
	ErrManifestLoad     = manifest.ErrManifestLoad
)

// StructuralInconsistencyError reports a language tree that does not mirror
// the reference language, or a directory that is neither a section nor a
// plain container.
type StructuralInconsistencyError struct {
	// Path is the offending path relative to the source root.
	Path   string
	Reason string
}

func (e *StructuralInconsistencyError) Error() string {
	return fmt.Sprintf("structural inconsistency at %s: %s", e.Path, e.Reason)
}

func (e *StructuralInconsistencyError) Is(target error) bool {
	return target == ErrStructuralInconsistency
}

// CancellationError is returned when a run was cancelled by a signal or by
// the caller's context.
type CancellationError struct {
	Cause error
}

func (e *CancellationError) Error() string {
	if e.Cause == nil {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCancelled, e.Cause)
}

func (e *CancellationError) Unwrap() error { return e.Cause }

func (e *CancellationError) Is(target error) bool { return target == ErrCancelled }
