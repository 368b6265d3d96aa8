package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stackvity/book-converter/pkg/converter/cache"
	"github.com/stackvity/book-converter/pkg/converter/extension"
	"github.com/stackvity/book-converter/pkg/converter/extension/builtin"
	"github.com/stackvity/book-converter/pkg/converter/manifest"
	"github.com/stackvity/book-converter/pkg/util"
)

// Engine runs one conversion: it owns the queue, the producer, the
// consumer workers and the extension set, and tears them down.
//
// States: idle -> running -> draining | cancelling -> stopped. An Engine
// runs once.
type Engine struct {
	opts   *Options
	logger *slog.Logger
	state  atomic.Int32
	runID  string

	manifest   *manifest.Manifest
	exts       *extension.Set
	cache      CacheManager
	lock       *flock.Flock
	aggregator *reportAggregator
	queue      *JobQueue
	producer   *Producer
	consumer   *Consumer
	workers    []*Worker
}

// NewEngine validates opts and fills in defaults.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: Logger implementation (slog.Handler) cannot be nil", ErrConfigValidation)
	}
	logger := slog.New(opts.Logger).With(slog.String("component", "engine"))

	if opts.Parser == nil {
		return nil, fmt.Errorf("%w: a Parser is required", ErrConfigValidation)
	}
	if opts.InputPath == "" || opts.OutputPath == "" {
		return nil, fmt.Errorf("%w: input and output paths are required", ErrConfigValidation)
	}
	if opts.Concurrency < 0 || opts.QueueSize < 0 {
		return nil, fmt.Errorf("%w: concurrency and queue size cannot be negative", ErrConfigValidation)
	}
	if opts.OnErrorMode == "" {
		opts.OnErrorMode = DefaultOnErrorMode
	}
	if !opts.OnErrorMode.Valid() {
		return nil, fmt.Errorf("%w: invalid onError mode %q (continue, fail, stop)", ErrConfigValidation, opts.OnErrorMode)
	}

	var err error
	if opts.InputPath, err = filepath.Abs(opts.InputPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}
	if opts.OutputPath, err = filepath.Abs(opts.OutputPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot access input path %q: %w", ErrConfigValidation, opts.InputPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: input path %q is not a directory", ErrConfigValidation, opts.InputPath)
	}
	if rel, err := filepath.Rel(opts.InputPath, opts.OutputPath); err == nil && !strings.HasPrefix(rel, "..") {
		first := strings.Split(filepath.ToSlash(rel), "/")[0]
		if rel == "." || !util.IsReservedName(first) {
			return nil, fmt.Errorf("%w: output path %q is inside the source tree; use a name starting with '_' or '.'", ErrConfigValidation, opts.OutputPath)
		}
	}

	if opts.Concurrency == 0 {
		opts.Concurrency = runtime.NumCPU()
		logger.Debug("Concurrency auto-detected", slog.Int("count", opts.Concurrency))
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = 2 * opts.Concurrency
	}
	if opts.DispatchWarnThreshold <= 0 {
		opts.DispatchWarnThreshold = DefaultDispatchWarnThreshold
	}
	if len(opts.ContentExtensions) == 0 {
		opts.ContentExtensions = DefaultContentExtensions
	}
	exts := make([]string, 0, len(opts.ContentExtensions))
	for _, ext := range opts.ContentExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	opts.ContentExtensions = exts
	if opts.CacheFilePath == "" {
		opts.CacheFilePath = filepath.Join(opts.OutputPath, cache.CacheFileName)
	}
	if opts.AppVersion == "" {
		opts.AppVersion = "dev"
	}
	if opts.EventHooks == nil {
		opts.EventHooks = &NoOpHooks{}
	}
	if opts.Registry == nil {
		opts.Registry = builtin.Registry()
	}

	return &Engine{
		opts:       &opts,
		logger:     logger,
		runID:      uuid.NewString(),
		aggregator: newReportAggregator(),
	}, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Workers returns the consumer workers of the run.
func (e *Engine) Workers() []*Worker { return e.workers }

// Run converts the source tree and returns the report. The error is nil,
// ErrJobsFailed (see OnErrorMode), a *CancellationError, or the fatal
// error that stopped the run.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return Report{}, fmt.Errorf("%w: engine already ran", ErrConfigValidation)
	}
	startTime := time.Now()
	e.logger.Info("Starting conversion run",
		slog.String("runId", e.runID),
		slog.String("input", e.opts.InputPath),
		slog.String("output", e.opts.OutputPath),
		slog.Int("concurrency", e.opts.Concurrency),
		slog.Bool("orderedHooks", e.opts.OrderedHooks),
		slog.String("onError", string(e.opts.OnErrorMode)))

	runErr := e.safeRun(ctx, startTime)
	e.teardown(ctx)
	e.state.Store(int32(StateStopped))

	switch {
	case runErr == nil:
	case errors.Is(runErr, ErrCancelled):
		e.logger.Warn("Conversion run cancelled", slog.String("reason", runErr.Error()))
	case errors.Is(runErr, ErrJobsFailed):
		e.logger.Error("Conversion run failed", slog.String("error", runErr.Error()))
	default:
		path := failingPath(runErr)
		e.aggregator.addFatal(path, runErr)
		e.logger.Error("Conversion run aborted", slog.String("path", path), slog.String("error", runErr.Error()))
	}

	report := e.aggregator.report(e, startTime, runErr)
	e.logger.Info("Conversion run finished",
		slog.Duration("duration", time.Since(startTime)),
		slog.Int("processed", report.Summary.ProcessedCount),
		slog.Int("cached", report.Summary.CachedCount),
		slog.Int("skipped", report.Summary.SkippedCount),
		slog.Int("errors", report.Summary.ErrorCount))
	if err := e.opts.EventHooks.OnRunComplete(report); err != nil {
		e.logger.Warn("OnRunComplete hook returned an error", slog.String("error", err.Error()))
	}
	return report, runErr
}

func (e *Engine) safeRun(ctx context.Context, startTime time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during run: %v", r)
		}
	}()
	return e.run(ctx, startTime)
}

func (e *Engine) run(ctx context.Context, startTime time.Time) error {
	m, err := e.loadManifest()
	if err != nil {
		return err
	}
	e.manifest = m

	names := e.opts.Extensions
	if len(names) == 0 {
		names = m.Extensions
	}
	built, err := e.opts.Registry.Build(names, extension.Env{
		Manifest: m,
		Logger:   e.opts.Logger,
		Git:      e.opts.GitClient,
		Renderer: e.opts.Renderer,
	})
	if err != nil {
		return err
	}
	e.exts = extension.NewSet(e.opts.Logger, built...)

	if err := os.MkdirAll(filepath.Dir(e.opts.OutputPath), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrMkdirFailed, err)
	}
	if e.lock, err = lockOutput(e.opts.OutputPath); err != nil {
		return err
	}
	if err := prepareOutputDir(e.opts.OutputPath, e.opts.ForceOverwrite, e.logger); err != nil {
		return err
	}
	e.loadCache()

	if e.opts.HandleSignals {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopWatch := context.AfterFunc(runCtx, func() {
		e.state.CompareAndSwap(int32(StateRunning), int32(StateCancelling))
	})
	defer stopWatch()

	seq := newSequencer(e.opts.OrderedHooks)
	e.queue = NewJobQueue(e.opts.QueueSize, WithDispatchWarn(e.opts.DispatchWarnThreshold, e.opts.Logger))
	results := make(chan Result, e.opts.Concurrency)
	aggDone := make(chan struct{})
	go e.aggregate(results, cancel, aggDone)

	e.producer, err = NewProducer(ProducerConfig{
		SourceRoot:        e.opts.InputPath,
		DestRoot:          e.opts.OutputPath,
		Languages:         m.Languages,
		Pages:             m.Pages,
		Fragments:         m.Fragments,
		ContentExtensions: e.opts.ContentExtensions,
		IgnorePatterns:    e.opts.IgnorePatterns,
	}, e.queue, e.exts, seq, e.opts.EventHooks, results, e.opts.Logger)
	if err != nil {
		close(results)
		<-aggDone
		return err
	}
	var cleaners []Cleaner
	if cl, ok := e.opts.Renderer.(Cleaner); ok {
		cleaners = append(cleaners, cl)
	}
	e.consumer = NewConsumer(ConsumerConfig{
		Parser:          e.opts.Parser,
		Cache:           e.cache,
		CacheEnabled:    e.opts.CacheEnabled,
		IgnoreCacheRead: e.opts.IgnoreCacheRead,
		PrettyJSON:      e.opts.PrettyJSON,
		Events:          e.opts.EventHooks,
		Cleaners:        cleaners,
	}, e.exts, seq, e.opts.Logger)

	g, gctx := errgroup.WithContext(runCtx)
	consumerCtx, stopConsumers := context.WithCancel(gctx)
	defer stopConsumers()
	for i := 0; i < e.opts.Concurrency; i++ {
		w := NewWorker(i, e.queue, e.consumer, results, e.opts.Logger)
		e.workers = append(e.workers, w)
		g.Go(func() error {
			_ = w.Run(consumerCtx)
			return nil
		})
	}
	g.Go(func() error {
		if err := e.producer.Run(gctx); err != nil {
			if !isCancellation(err) {
				cancel(err)
			}
			return err
		}
		if err := e.queue.Join(gctx); err != nil {
			return err
		}
		e.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
		e.logger.Debug("Queue drained, stopping consumers")
		stopConsumers()
		return nil
	})
	waitErr := g.Wait()
	close(results)
	<-aggDone

	if runCtx.Err() != nil {
		cause := context.Cause(runCtx)
		if ctx.Err() != nil && errors.Is(cause, context.Cause(ctx)) {
			return &CancellationError{Cause: cause}
		}
		return cause
	}
	if waitErr != nil {
		return waitErr
	}

	if err := e.exts.Finish(runCtx); err != nil {
		return err
	}
	langs := e.producer.Languages()
	if err := e.writeTOCs(langs); err != nil {
		return err
	}
	if err := e.writeManifest(langs, startTime); err != nil {
		return err
	}
	if n := e.aggregator.failedCount(); n > 0 && e.opts.OnErrorMode != OnErrorContinue {
		return fmt.Errorf("%w: %d job(s) failed", ErrJobsFailed, n)
	}
	return nil
}

func (e *Engine) loadManifest() (*manifest.Manifest, error) {
	if e.opts.Manifest == nil {
		return manifest.Load(e.opts.InputPath)
	}
	if err := e.opts.Manifest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestLoad, err)
	}
	return e.opts.Manifest, nil
}

func (e *Engine) loadCache() {
	if !e.opts.CacheEnabled {
		e.cache = &NoOpCacheManager{}
		return
	}
	e.cache = e.opts.CacheManager
	if e.cache == nil {
		e.cache = cache.NewFileCacheManager(e.opts.Logger, e.opts.AppVersion, e.opts.CacheFormat)
	}
	if e.opts.ClearCache {
		if err := os.Remove(e.opts.CacheFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("Failed to clear cache file", slog.String("path", e.opts.CacheFilePath), slog.String("error", err.Error()))
		}
	}
	if err := e.cache.Load(e.opts.CacheFilePath); err != nil {
		e.logger.Warn("Cache unavailable, continuing without it", slog.String("path", e.opts.CacheFilePath), slog.String("error", err.Error()))
		e.cache = &NoOpCacheManager{}
	}
}

// aggregate drains results until the channel is closed. With OnErrorStop
// the first failed job cancels the run.
func (e *Engine) aggregate(results <-chan Result, cancel context.CancelCauseFunc, done chan<- struct{}) {
	defer close(done)
	for r := range results {
		if first := e.aggregator.add(r); first && e.opts.OnErrorMode == OnErrorStop {
			e.logger.Info("Stopping after first failed job", slog.String("path", r.Job.RelPath))
			cancel(fmt.Errorf("%w: %s: %w", ErrJobsFailed, r.Job.RelPath, r.Err))
		}
	}
}

// teardown runs on every exit path: Cleanup once per worker class, cache
// persist, lock release.
func (e *Engine) teardown(ctx context.Context) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultCleanupTimeout)
	defer cancel()
	seen := make(map[string]bool)
	for _, w := range e.workers {
		class := w.Class()
		if seen[class] {
			continue
		}
		seen[class] = true
		if cl, ok := w.Processor().(Cleaner); ok {
			if err := cl.Cleanup(cctx); err != nil {
				e.logger.Warn("Worker cleanup failed", slog.String("class", class), slog.String("error", err.Error()))
			}
		}
	}

	if e.cache != nil {
		if err := e.cache.Persist(e.opts.CacheFilePath); err != nil {
			e.logger.Error("Failed to persist cache", slog.String("path", e.opts.CacheFilePath), slog.String("error", err.Error()))
		}
	}
	if e.lock != nil {
		if err := e.lock.Unlock(); err != nil {
			e.logger.Warn("Failed to release output lock", slog.String("path", e.lock.Path()), slog.String("error", err.Error()))
		}
	}
}

// failingPath extracts the path or name a fatal error is about.
func failingPath(err error) string {
	var se *StructuralInconsistencyError
	if errors.As(err, &se) {
		return se.Path
	}
	var ue *extension.UnknownExtensionError
	if errors.As(err, &ue) {
		return ue.Name
	}
	return ""
}
