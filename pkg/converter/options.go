package converter

import (
	"context"
	"log/slog"
	"time"

	"github.com/stackvity/book-converter/pkg/converter/cache"
	"github.com/stackvity/book-converter/pkg/converter/extension"
	"github.com/stackvity/book-converter/pkg/converter/git"
	"github.com/stackvity/book-converter/pkg/converter/manifest"
	"github.com/stackvity/book-converter/pkg/converter/parser"
)

// Hooks receives progress events. Implementations must be safe for
// concurrent use; consumers call OnFileStatusUpdate in parallel.
type Hooks interface {
	// OnFileDiscovered is called when a job is queued.
	OnFileDiscovered(path string) error
	OnFileStatusUpdate(path string, status Status, message string, duration time.Duration) error
	OnRunComplete(report Report) error
}

// NoOpHooks ignores every event.
type NoOpHooks struct{}

func (h *NoOpHooks) OnFileDiscovered(string) error { return nil }

func (h *NoOpHooks) OnFileStatusUpdate(string, Status, string, time.Duration) error { return nil }

func (h *NoOpHooks) OnRunComplete(Report) error { return nil }

// CacheManager is the parse cache.
type CacheManager = cache.CacheManager

// NoOpCacheManager never hits.
type NoOpCacheManager struct{}

func (c *NoOpCacheManager) Load(string) error { return nil }

func (c *NoOpCacheManager) Check(string, time.Time, string, string) ([]byte, bool) { return nil, false }

func (c *NoOpCacheManager) Update(string, time.Time, string, string, []byte) error { return nil }

func (c *NoOpCacheManager) Persist(string) error { return nil }

// Cleaner is implemented by worker classes and collaborators holding
// resources for the whole run. Cleanup is called once per class after the
// workers stopped.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Options holds the configuration of one run.
type Options struct {
	// InputPath is the source root; it holds the manifest and one directory
	// per language.
	InputPath  string `mapstructure:"inputPath"`
	OutputPath string `mapstructure:"outputPath"`

	// AppVersion is written to manifest.json and guards the cache.
	AppVersion     string `mapstructure:"-"`
	ConfigFilePath string `mapstructure:"-"`
	ProfileName    string `mapstructure:"-"`

	// Extensions replaces the manifest's extension list when not empty.
	Extensions     []string    `mapstructure:"extensions"`
	ForceOverwrite bool        `mapstructure:"force"`
	Verbose        bool        `mapstructure:"verbose"`
	TuiEnabled     bool        `mapstructure:"tui"`
	OnErrorMode    OnErrorMode `mapstructure:"onError"`
	OrderedHooks   bool        `mapstructure:"orderedHooks"`

	Concurrency     int    `mapstructure:"concurrency"`
	QueueSize       int    `mapstructure:"queueSize"`
	CacheEnabled    bool   `mapstructure:"cache"`
	CacheFormat     string `mapstructure:"cacheFormat"`
	IgnoreCacheRead bool   `mapstructure:"-"`
	ClearCache      bool   `mapstructure:"-"`
	CacheFilePath   string `mapstructure:"-"`

	IgnorePatterns    []string `mapstructure:"ignore"`
	ContentExtensions []string `mapstructure:"contentExtensions"`

	PrettyJSON   bool         `mapstructure:"pretty"`
	OutputFormat OutputFormat `mapstructure:"outputFormat"`
	// PandocPath, PandocFrom and DotPath configure the CLI's external tools.
	PandocPath string `mapstructure:"pandoc"`
	PandocFrom string `mapstructure:"pandocFrom"`
	DotPath    string `mapstructure:"dot"`

	// HandleSignals makes Run cancel itself on SIGINT and SIGTERM.
	HandleSignals         bool          `mapstructure:"-"`
	DispatchWarnThreshold time.Duration `mapstructure:"-"`

	// Manifest skips loading the manifest from InputPath when set.
	Manifest     *manifest.Manifest  `mapstructure:"-"`
	EventHooks   Hooks               `mapstructure:"-"`
	Logger       slog.Handler        `mapstructure:"-"`
	Parser       parser.Parser       `mapstructure:"-"`
	Registry     *extension.Registry `mapstructure:"-"`
	GitClient    git.Client          `mapstructure:"-"`
	Renderer     extension.Renderer  `mapstructure:"-"`
	CacheManager CacheManager        `mapstructure:"-"`
}
