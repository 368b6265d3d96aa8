package extension

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/stackvity/book-converter/pkg/converter/document"
)

// Set calls hooks on a list of extensions in declared order. One mutex is
// held around every hook call, so extensions never see concurrent calls.
// The first failing extension stops the call; its error is wrapped with
// ErrExtensionHook and the extension name.
type Set struct {
	mu     sync.Mutex
	exts   []Extension
	logger *slog.Logger
}

// NewSet returns a Set over exts.
func NewSet(loggerHandler slog.Handler, exts ...Extension) *Set {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &Set{
		exts:   exts,
		logger: slog.New(loggerHandler).With(slog.String("component", "extensions")),
	}
}

// Names returns the extension names in call order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.exts))
	for _, e := range s.exts {
		names = append(names, e.Name())
	}
	return names
}

// Len returns the number of extensions.
func (s *Set) Len() int { return len(s.exts) }

func (s *Set) each(hook string, fn func(Extension) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.exts {
		if err := fn(e); err != nil {
			s.logger.Debug("Extension hook failed", slog.String("extension", e.Name()), slog.String("hook", hook), slog.Any("error", err))
			return fmt.Errorf("%w: %s.%s: %w", ErrExtensionHook, e.Name(), hook, err)
		}
	}
	return nil
}

// Start calls Start on every extension before the first job is queued.
func (s *Set) Start(ctx context.Context, destRoot, sourceRoot string) error {
	return s.each("start", func(e Extension) error { return e.Start(ctx, destRoot, sourceRoot) })
}

// PreConversion runs before the jobs of lang are queued.
func (s *Set) PreConversion(ctx context.Context, lang string) error {
	return s.each("pre_conversion", func(e Extension) error { return e.PreConversion(ctx, lang) })
}

// PreProcessFile runs on the consumer, before file is parsed.
func (s *Set) PreProcessFile(ctx context.Context, file File) error {
	return s.each("pre_process_file", func(e Extension) error { return e.PreProcessFile(ctx, file) })
}

// PostProcessFile hands the parsed doc to every extension in turn; each
// sees the rewrites of the ones before it.
func (s *Set) PostProcessFile(ctx context.Context, doc *document.Document, file File) error {
	return s.each("post_process_file", func(e Extension) error { return e.PostProcessFile(ctx, doc, file) })
}

// PostConversion runs after the jobs of lang are queued. With ordered
// hooks it also waits for their post-processing.
func (s *Set) PostConversion(ctx context.Context, lang string) error {
	return s.each("post_conversion", func(e Extension) error { return e.PostConversion(ctx, lang) })
}

// Finish runs after the last language, before the manifest is written.
func (s *Set) Finish(ctx context.Context) error {
	return s.each("finish", func(e Extension) error { return e.Finish(ctx) })
}

// ManifestFields merges the fields of every extension. On a key clash the
// later extension wins and a warning is logged.
func (s *Set) ManifestFields() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make(map[string]any)
	owner := make(map[string]string)
	for _, e := range s.exts {
		for k, v := range e.ManifestFields() {
			if prev, ok := owner[k]; ok {
				s.logger.Warn("Manifest field set by more than one extension",
					slog.String("field", k), slog.String("previous", prev), slog.String("extension", e.Name()))
			}
			merged[k] = v
			owner[k] = e.Name()
		}
	}
	return merged
}
