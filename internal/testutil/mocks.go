// Package testutil holds test doubles for the interfaces of pkg/converter
// and its subpackages.
package testutil

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/stackvity/book-converter/pkg/converter"
	"github.com/stackvity/book-converter/pkg/converter/document"
	"github.com/stackvity/book-converter/pkg/converter/extension"
	"github.com/stackvity/book-converter/pkg/converter/git"
)

// MockCacheManager mocks converter.CacheManager.
type MockCacheManager struct {
	mock.Mock
}

func (m *MockCacheManager) Load(cachePath string) error {
	args := m.Called(cachePath)
	return args.Error(0)
}

func (m *MockCacheManager) Check(filePath string, modTime time.Time, sourceHash, parserID string) ([]byte, bool) {
	args := m.Called(filePath, modTime, sourceHash, parserID)
	data, _ := args.Get(0).([]byte)
	return data, args.Bool(1)
}

func (m *MockCacheManager) Update(filePath string, modTime time.Time, sourceHash, parserID string, doc []byte) error {
	args := m.Called(filePath, modTime, sourceHash, parserID, doc)
	return args.Error(0)
}

func (m *MockCacheManager) Persist(cachePath string) error {
	args := m.Called(cachePath)
	return args.Error(0)
}

// MockGitClient mocks git.Client. Return(nil, nil) means "no commit".
type MockGitClient struct {
	mock.Mock
}

func (m *MockGitClient) LastCommit(ctx context.Context, path string) (*git.Commit, error) {
	args := m.Called(ctx, path)
	c, _ := args.Get(0).(*git.Commit)
	return c, args.Error(1)
}

func (m *MockGitClient) Head(ctx context.Context, dir string) (*git.Commit, error) {
	args := m.Called(ctx, dir)
	c, _ := args.Get(0).(*git.Commit)
	return c, args.Error(1)
}

// MockRenderer mocks extension.Renderer.
type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, format string, source []byte) ([]byte, error) {
	args := m.Called(ctx, format, source)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

// MockHooks mocks converter.Hooks. testify mocks are safe for the
// concurrent calls made by consumers.
type MockHooks struct {
	mock.Mock
}

func (m *MockHooks) OnFileDiscovered(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockHooks) OnFileStatusUpdate(path string, status converter.Status, message string, duration time.Duration) error {
	args := m.Called(path, status, message, duration)
	return args.Error(0)
}

func (m *MockHooks) OnRunComplete(report converter.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

// StubParser reads markdown-ish files: a first line "# Title" sets the
// title, every other non-empty line becomes a paragraph. A line
// "kind: <kind>" sets the section kind.
type StubParser struct {
	// Delay, when set, is slept before parsing path (ctx aware).
	Delay func(path string) time.Duration
	// Fail, when set and returning an error, fails the parse of path.
	Fail func(path string) error

	mu      sync.Mutex
	calls   int
	cleanup int
}

func (p *StubParser) Parse(ctx context.Context, path string) (*document.Document, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.Delay != nil {
		select {
		case <-time.After(p.Delay(path)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.Fail != nil {
		if err := p.Fail(path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc := &document.Document{Blocks: []*document.Node{}}
	sc := bufio.NewScanner(f)
	for first := true; sc.Scan(); first = false {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case first && strings.HasPrefix(line, "# "):
			doc.Title = strings.TrimPrefix(line, "# ")
		case strings.HasPrefix(line, "kind: "):
			doc.Kind = document.SectionKind(strings.TrimPrefix(line, "kind: "))
		default:
			doc.Blocks = append(doc.Blocks, &document.Node{Kind: document.KindPara, Inlines: []*document.Node{document.Str(line)}})
		}
	}
	return doc, sc.Err()
}

func (p *StubParser) Identity() string { return "stub/1" }

// Cleanup counts its calls.
func (p *StubParser) Cleanup(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanup++
	return nil
}

// Calls returns the number of Parse calls.
func (p *StubParser) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Cleanups returns the number of Cleanup calls.
func (p *StubParser) Cleanups() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cleanup
}

// RecordingExtension records every hook call as "hook" or "hook:arg".
// Fail, when set, is consulted first and may fail any hook.
type RecordingExtension struct {
	extension.Base
	Fail func(hook, arg string) error

	mu      sync.Mutex
	calls   []string
	workers map[string][]int
}

func (r *RecordingExtension) record(hook, arg string) error {
	r.mu.Lock()
	if arg == "" {
		r.calls = append(r.calls, hook)
	} else {
		r.calls = append(r.calls, hook+":"+arg)
	}
	r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail(hook, arg)
	}
	return nil
}

func (r *RecordingExtension) Name() string { return "recorder" }

func (r *RecordingExtension) Start(context.Context, string, string) error {
	return r.record("start", "")
}

func (r *RecordingExtension) PreConversion(_ context.Context, lang string) error {
	return r.record("pre_conversion", lang)
}

func (r *RecordingExtension) PreProcessFile(_ context.Context, f extension.File) error {
	r.recordWorker("pre_process_file", f)
	return r.record("pre_process_file", f.Path)
}

func (r *RecordingExtension) PostProcessFile(_ context.Context, doc *document.Document, f extension.File) error {
	if doc == nil {
		return fmt.Errorf("nil document for %s", f.Path)
	}
	r.recordWorker("post_process_file", f)
	return r.record("post_process_file", f.Path)
}

func (r *RecordingExtension) PostConversion(_ context.Context, lang string) error {
	return r.record("post_conversion", lang)
}

func (r *RecordingExtension) Finish(context.Context) error {
	return r.record("finish", "")
}

func (r *RecordingExtension) ManifestFields() map[string]any {
	return map[string]any{"recorder": map[string]int{"calls": len(r.Calls())}}
}

func (r *RecordingExtension) recordWorker(hook string, f extension.File) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workers == nil {
		r.workers = make(map[string][]int)
	}
	key := hook + ":" + f.Path
	r.workers[key] = append(r.workers[key], f.Worker)
}

// Workers returns the worker ids that ran hook for path, in call order.
func (r *RecordingExtension) Workers(hook, path string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.workers[hook+":"+path]...)
}

// Calls returns a copy of the recorded calls.
func (r *RecordingExtension) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Filter returns the recorded calls starting with prefix.
func (r *RecordingExtension) Filter(prefix string) []string {
	var out []string
	for _, c := range r.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Registry returns a registry building ext under name.
func (r *RecordingExtension) Registry(name string) *extension.Registry {
	reg := extension.NewRegistry()
	reg.MustRegister(name, func(extension.Env) (extension.Extension, error) { return r, nil })
	return reg
}
