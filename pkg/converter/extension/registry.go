package extension

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/stackvity/book-converter/pkg/converter/git"
	"github.com/stackvity/book-converter/pkg/converter/manifest"
)

// ErrUnknownExtension matches every *UnknownExtensionError.
var ErrUnknownExtension = errors.New("unknown extension")

// UnknownExtensionError names an extension that is not registered.
type UnknownExtensionError struct {
	Name  string
	Known []string
}

func (e *UnknownExtensionError) Error() string {
	return fmt.Sprintf("unknown extension %q (available: %s)", e.Name, strings.Join(e.Known, ", "))
}

func (e *UnknownExtensionError) Is(target error) bool { return target == ErrUnknownExtension }

// Env is what a constructor gets to build an extension.
type Env struct {
	Manifest *manifest.Manifest
	Logger   slog.Handler
	Git      git.Client
	Renderer Renderer
}

// Constructor builds one extension instance for a run.
type Constructor func(env Env) (Extension, error)

// Registry maps extension names to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a constructor. Registering a name twice is an error.
func (r *Registry) Register(name string, ctor Constructor) error {
	if name == "" || ctor == nil {
		return fmt.Errorf("extension registration needs a name and a constructor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[name]; exists {
		return fmt.Errorf("extension %q already registered", name)
	}
	r.ctors[name] = ctor
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name string, ctor Constructor) {
	if err := r.Register(name, ctor); err != nil {
		panic(err)
	}
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check returns an *UnknownExtensionError for the first name not registered.
func (r *Registry) Check(names []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range names {
		if _, ok := r.ctors[n]; !ok {
			known := make([]string, 0, len(r.ctors))
			for k := range r.ctors {
				known = append(known, k)
			}
			sort.Strings(known)
			return &UnknownExtensionError{Name: n, Known: known}
		}
	}
	return nil
}

// Build checks every name, then constructs the extensions in the given
// order. Repeated names are built once. Nothing is constructed when a name
// is unknown.
func (r *Registry) Build(names []string, env Env) ([]Extension, error) {
	if err := r.Check(names); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(names))
	exts := make([]Extension, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		ext, err := r.ctors[n](env)
		if err != nil {
			return nil, fmt.Errorf("building extension %q: %w", n, err)
		}
		exts = append(exts, ext)
	}
	return exts, nil
}
