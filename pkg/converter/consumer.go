package converter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/stackvity/book-converter/pkg/converter/document"
	"github.com/stackvity/book-converter/pkg/converter/extension"
	"github.com/stackvity/book-converter/pkg/converter/parser"
)

// fileHooks is the part of the extension contract driven by the consumers.
type fileHooks interface {
	PreProcessFile(ctx context.Context, file extension.File) error
	PostProcessFile(ctx context.Context, doc *document.Document, file extension.File) error
}

// Consumer converts one job: pre-process hook, parse (through the cache),
// post-process hook in ticket order, then an atomic write of the JSON.
type Consumer struct {
	parser    parser.Parser
	parserID  string
	cache     CacheManager
	cacheRead bool
	exts      fileHooks
	seq       *sequencer
	events    Hooks
	pretty    bool
	logger    *slog.Logger
	cleaners  []Cleaner
}

// ConsumerConfig holds the collaborators of a Consumer.
type ConsumerConfig struct {
	Parser       parser.Parser
	Cache        CacheManager
	CacheEnabled bool
	// IgnoreCacheRead still writes the cache but never reads it.
	IgnoreCacheRead bool
	PrettyJSON      bool
	Events          Hooks
	// Cleaners are released by Cleanup, after the parser.
	Cleaners []Cleaner
}

// NewConsumer returns the processor shared by all consumer workers.
func NewConsumer(cfg ConsumerConfig, exts fileHooks, seq *sequencer, loggerHandler slog.Handler) *Consumer {
	c := &Consumer{
		parser:    cfg.Parser,
		cache:     cfg.Cache,
		cacheRead: cfg.CacheEnabled && !cfg.IgnoreCacheRead,
		exts:      exts,
		seq:       seq,
		events:    cfg.Events,
		pretty:    cfg.PrettyJSON,
		logger:    slog.New(loggerHandler).With(slog.String("component", "consumer")),
	}
	if c.cache == nil || !cfg.CacheEnabled {
		c.cache = &NoOpCacheManager{}
	}
	if c.events == nil {
		c.events = &NoOpHooks{}
	}
	if id, ok := cfg.Parser.(parser.Identifier); ok {
		c.parserID = id.Identity()
	} else {
		c.parserID = fmt.Sprintf("%T", cfg.Parser)
	}
	if cl, ok := cfg.Parser.(Cleaner); ok {
		c.cleaners = append(c.cleaners, cl)
	}
	c.cleaners = append(c.cleaners, cfg.Cleaners...)
	return c
}

// Process implements Processor.
func (c *Consumer) Process(ctx context.Context, job Job) Result {
	start := time.Now()
	// Released on every path, panics included.
	release := sync.OnceFunc(func() { c.seq.Done(job.Seq) })
	defer release()

	c.status(job.RelPath, StatusProcessing, "", 0)
	file := job.File()

	fail := func(err error) Result {
		release()
		d := time.Since(start)
		if !isCancellation(err) {
			c.logger.Warn("Conversion failed", slog.String("path", job.RelPath), slog.String("error", err.Error()))
		}
		c.status(job.RelPath, StatusFailed, err.Error(), d)
		return Result{Job: job, Status: StatusFailed, Err: err, Duration: d}
	}

	if err := c.exts.PreProcessFile(ctx, file); err != nil {
		return fail(err)
	}
	doc, cacheStatus, err := c.parse(ctx, job)
	if err != nil {
		return fail(err)
	}
	if err := c.seq.Wait(ctx, job.Seq); err != nil {
		return fail(err)
	}
	err = c.exts.PostProcessFile(ctx, doc, file)
	release()
	if err != nil {
		return fail(err)
	}
	if err := writeJSON(job.DestPath, doc, c.pretty); err != nil {
		return fail(err)
	}

	status := StatusSuccess
	if cacheStatus == CacheStatusHit {
		status = StatusCached
	}
	d := time.Since(start)
	c.status(job.RelPath, status, "", d)
	c.logger.Debug("Job converted", slog.String("path", job.RelPath), slog.String("cache", cacheStatus), slog.Duration("duration", d))
	return Result{
		Job:         job,
		Status:      status,
		Duration:    d,
		CacheStatus: cacheStatus,
		Title:       doc.Title,
		ShortTitle:  doc.ShortTitle,
		SectionKind: doc.Kind,
	}
}

// parse returns the document of job, from the cache when the source is
// unchanged. Cached documents are stored before extensions ran.
func (c *Consumer) parse(ctx context.Context, job Job) (*document.Document, string, error) {
	if _, disabled := c.cache.(*NoOpCacheManager); disabled {
		doc, err := c.parser.Parse(ctx, job.SourcePath)
		return doc, CacheStatusDisabled, err
	}

	info, err := os.Stat(job.SourcePath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", ErrReadFailed, job.RelPath, err)
	}
	content, err := os.ReadFile(job.SourcePath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", ErrReadFailed, job.RelPath, err)
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	if c.cacheRead {
		if data, hit := c.cache.Check(job.RelPath, info.ModTime(), hash, c.parserID); hit {
			doc := &document.Document{}
			if err := json.Unmarshal(data, doc); err == nil {
				return doc, CacheStatusHit, nil
			}
			c.logger.Warn("Cached document unreadable, parsing again", slog.String("path", job.RelPath))
		}
	}

	doc, err := c.parser.Parse(ctx, job.SourcePath)
	if err != nil {
		return nil, "", err
	}
	if data, err := json.Marshal(doc); err == nil {
		if err := c.cache.Update(job.RelPath, info.ModTime(), hash, c.parserID, data); err != nil {
			c.logger.Warn("Cache update failed", slog.String("path", job.RelPath), slog.String("error", err.Error()))
		}
	}
	return doc, CacheStatusMiss, nil
}

func (c *Consumer) status(path string, s Status, msg string, d time.Duration) {
	if err := c.events.OnFileStatusUpdate(path, s, msg, d); err != nil {
		c.logger.Warn("OnFileStatusUpdate hook failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Cleanup releases the parser and the other run-wide collaborators.
func (c *Consumer) Cleanup(ctx context.Context) error {
	var first error
	for _, cl := range c.cleaners {
		if err := cl.Cleanup(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
