package converter

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/stackvity/book-converter/pkg/util"
)

// lifecycle is the part of the extension contract driven by the producer.
type lifecycle interface {
	Start(ctx context.Context, destRoot, sourceRoot string) error
	PreConversion(ctx context.Context, lang string) error
	PostConversion(ctx context.Context, lang string) error
}

// ProducerConfig configures a Producer.
type ProducerConfig struct {
	SourceRoot string
	DestRoot   string
	// Languages in declared order; empty means every non-reserved
	// directory of SourceRoot, sorted. The first one is the reference.
	Languages         []string
	Pages             []string
	Fragments         []string
	ContentExtensions []string
	IgnorePatterns    []string
}

// Producer walks every language tree, checks that all languages mirror the
// reference language, then queues one job per section, page and fragment.
type Producer struct {
	cfg     ProducerConfig
	sink    JobSink
	exts    lifecycle
	seq     *sequencer
	events  Hooks
	results chan<- Result
	ignore  *ignoreMatcher
	logger  *slog.Logger

	langs      []string
	containers map[string][]Result
}

type section struct {
	id         string
	relPath    string
	sourcePath string
	// container directories hold sections but no content file.
	container bool
}

type languagePlan struct {
	lang     string
	sections []section
}

// NewProducer returns a producer sending jobs to sink and skipped results
// to results.
func NewProducer(cfg ProducerConfig, sink JobSink, exts lifecycle, seq *sequencer, events Hooks, results chan<- Result, loggerHandler slog.Handler) (*Producer, error) {
	logger := slog.New(loggerHandler).With(slog.String("component", "producer"))
	if len(cfg.ContentExtensions) == 0 {
		cfg.ContentExtensions = DefaultContentExtensions
	}
	if events == nil {
		events = &NoOpHooks{}
	}
	ignore, err := newIgnoreMatcher(cfg.SourceRoot, cfg.IgnorePatterns, logger)
	if err != nil {
		return nil, err
	}
	return &Producer{
		cfg:     cfg,
		sink:    sink,
		exts:    exts,
		seq:     seq,
		events:  events,
		results: results,
		ignore:  ignore,
		logger:  logger,

		containers: make(map[string][]Result),
	}, nil
}

// Languages returns the languages of the run once Run has resolved them.
func (p *Producer) Languages() []string { return p.langs }

// Containers returns the container directories of lang as section results
// without a job, for toc.json.
func (p *Producer) Containers(lang string) []Result { return p.containers[lang] }

// Run validates the whole tree, then queues the jobs language by language.
// A structural problem in any language fails the run before any hook or
// job.
func (p *Producer) Run(ctx context.Context) error {
	langs, err := p.resolveLanguages()
	if err != nil {
		return err
	}
	p.langs = langs

	plans := make([]languagePlan, 0, len(langs))
	for _, lang := range langs {
		sections, err := p.walkLanguage(ctx, lang)
		if err != nil {
			return err
		}
		plans = append(plans, languagePlan{lang: lang, sections: sections})
	}
	if err := checkStructure(plans); err != nil {
		return err
	}
	p.logger.Info("Source tree validated",
		slog.Int("languages", len(plans)), slog.Int("sectionsPerLanguage", len(plans[0].sections)))

	if err := p.exts.Start(ctx, p.cfg.DestRoot, p.cfg.SourceRoot); err != nil {
		return err
	}
	for _, plan := range plans {
		if err := p.produceLanguage(ctx, plan); err != nil {
			return err
		}
	}
	p.logger.Debug("All languages queued")
	return nil
}

func (p *Producer) resolveLanguages() ([]string, error) {
	if len(p.cfg.Languages) > 0 {
		return p.cfg.Languages, nil
	}
	entries, err := os.ReadDir(p.cfg.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("read source root %s: %w", p.cfg.SourceRoot, err)
	}
	var langs []string
	for _, e := range entries {
		if !e.IsDir() || util.IsReservedName(e.Name()) {
			continue
		}
		if ignored, _ := p.ignore.Match(e.Name(), true); ignored {
			continue
		}
		langs = append(langs, e.Name())
	}
	if len(langs) == 0 {
		return nil, &StructuralInconsistencyError{Path: ".", Reason: "no language directories"}
	}
	return langs, nil
}

func (p *Producer) walkLanguage(ctx context.Context, lang string) ([]section, error) {
	info, err := os.Stat(filepath.Join(p.cfg.SourceRoot, lang))
	if err != nil || !info.IsDir() {
		return nil, &StructuralInconsistencyError{Path: lang, Reason: "language directory missing"}
	}
	var sections []section
	if _, err := p.walkDir(ctx, lang, "", &sections); err != nil {
		return nil, err
	}
	p.logger.Debug("Language walked", slog.String("language", lang), slog.Int("sections", len(sections)))
	return sections, nil
}

// walkDir appends the sections below lang/id in depth-first, lexicographic
// pre-order and reports whether the directory or a descendant holds content.
func (p *Producer) walkDir(ctx context.Context, lang, id string, out *[]section) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir := filepath.Join(p.cfg.SourceRoot, lang, filepath.FromSlash(id))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", dir, err)
	}

	var content, subdirs []string
	for _, e := range entries {
		name := e.Name()
		if util.IsReservedName(name) {
			continue
		}
		if e.Type()&fs.ModeSymlink != 0 {
			p.logger.Debug("Skipping symbolic link", slog.String("path", path.Join(lang, id, name)))
			continue
		}
		rel := path.Join(lang, id, name)
		if ignored, by := p.ignore.Match(rel, e.IsDir()); ignored {
			p.logger.Debug("Path ignored", slog.String("path", rel), slog.String("pattern", by))
			continue
		}
		switch {
		case e.IsDir():
			subdirs = append(subdirs, name)
		case p.isContent(name):
			content = append(content, name)
		}
	}

	at := len(*out)
	if id != "" {
		switch len(content) {
		case 0:
		case 1:
			*out = append(*out, section{
				id:         id,
				relPath:    path.Join(lang, id, content[0]),
				sourcePath: filepath.Join(dir, content[0]),
			})
		default:
			return false, &StructuralInconsistencyError{
				Path:   path.Join(lang, id),
				Reason: "more than one content file: " + strings.Join(content, ", "),
			}
		}
	}

	nested := false
	for _, sub := range subdirs {
		has, err := p.walkDir(ctx, lang, path.Join(id, sub), out)
		if err != nil {
			return false, err
		}
		nested = nested || has
	}
	if id != "" && len(content) == 0 && nested {
		*out = slices.Insert(*out, at, section{id: id, relPath: path.Join(lang, id), container: true})
	}
	return len(content) > 0 || nested, nil
}

func (p *Producer) isContent(name string) bool {
	return slices.Contains(p.cfg.ContentExtensions, strings.ToLower(filepath.Ext(name)))
}

// checkStructure compares every language with the first one, position by
// position.
func checkStructure(plans []languagePlan) error {
	if len(plans) == 0 {
		return nil
	}
	ref := plans[0]
	for _, pl := range plans[1:] {
		for i, s := range pl.sections {
			if i >= len(ref.sections) {
				return &StructuralInconsistencyError{
					Path:   path.Join(pl.lang, s.id),
					Reason: fmt.Sprintf("section has no counterpart in %s", ref.lang),
				}
			}
			want := ref.sections[i]
			if s.id != want.id {
				return &StructuralInconsistencyError{
					Path:   path.Join(pl.lang, s.id),
					Reason: fmt.Sprintf("expected section %s at position %d, as in %s", want.id, i+1, ref.lang),
				}
			}
			if s.container != want.container {
				reason := "content file missing, present in " + ref.lang
				if want.container {
					reason = "unexpected content file, none in " + ref.lang
				}
				return &StructuralInconsistencyError{Path: path.Join(pl.lang, s.id), Reason: reason}
			}
		}
		if len(pl.sections) < len(ref.sections) {
			rest := ref.sections[len(pl.sections):]
			missing := rest[0].id
			for _, s := range rest {
				if !s.container {
					missing = s.id
					break
				}
			}
			return &StructuralInconsistencyError{
				Path:   path.Join(pl.lang, missing),
				Reason: fmt.Sprintf("section missing, present in %s", ref.lang),
			}
		}
	}
	return nil
}

func (p *Producer) produceLanguage(ctx context.Context, plan languagePlan) error {
	lang := plan.lang
	if err := p.seq.run(ctx, p.seq.Ticket(), func() error { return p.exts.PreConversion(ctx, lang) }); err != nil {
		return err
	}

	count := 0
	for _, s := range plan.sections {
		if s.container {
			t := p.seq.Ticket()
			p.seq.Done(t)
			p.containers[lang] = append(p.containers[lang], Result{
				Job:   Job{Kind: JobSection, Language: lang, ID: s.id, RelPath: s.relPath, Seq: t},
				Title: path.Base(s.id),
			})
			continue
		}
		job := Job{
			Kind:       JobSection,
			Language:   lang,
			ID:         s.id,
			RelPath:    s.relPath,
			SourcePath: s.sourcePath,
			DestPath:   filepath.Join(p.cfg.DestRoot, lang, filepath.FromSlash(s.id), ContentFileName),
		}
		if err := p.enqueue(ctx, job); err != nil {
			return err
		}
		count++
	}
	for _, art := range []struct {
		kind   JobKind
		names  []string
		reason string
	}{
		{JobPage, p.cfg.Pages, SkipReasonMissingPage},
		{JobFragment, p.cfg.Fragments, SkipReasonMissingFragment},
	} {
		for _, name := range art.names {
			src, rel := p.findArtifact(lang, name)
			if src == "" {
				p.logger.Warn("Declared file not found, skipping it",
					slog.String("kind", string(art.kind)), slog.String("path", path.Join(lang, name)))
				p.report(ctx, Result{
					Job:        Job{Kind: art.kind, Language: lang, ID: name, RelPath: path.Join(lang, name), Seq: -1},
					Status:     StatusSkipped,
					SkipReason: art.reason,
				})
				continue
			}
			job := Job{
				Kind:       art.kind,
				Language:   lang,
				ID:         name,
				RelPath:    rel,
				SourcePath: src,
				DestPath:   filepath.Join(p.cfg.DestRoot, lang, filepath.FromSlash(name)+".json"),
			}
			if err := p.enqueue(ctx, job); err != nil {
				return err
			}
			count++
		}
	}
	p.logger.Info("Language queued", slog.String("language", lang), slog.Int("jobs", count))

	return p.seq.run(ctx, p.seq.Ticket(), func() error { return p.exts.PostConversion(ctx, lang) })
}

// findArtifact locates lang/name with one of the content extensions.
func (p *Producer) findArtifact(lang, name string) (string, string) {
	for _, ext := range p.cfg.ContentExtensions {
		rel := path.Join(lang, name) + ext
		abs := filepath.Join(p.cfg.SourceRoot, filepath.FromSlash(rel))
		if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
			return abs, rel
		}
	}
	return "", ""
}

func (p *Producer) enqueue(ctx context.Context, job Job) error {
	job.Seq = p.seq.Ticket()
	if err := p.events.OnFileDiscovered(job.RelPath); err != nil {
		p.logger.Warn("OnFileDiscovered hook failed", slog.String("path", job.RelPath), slog.String("error", err.Error()))
	}
	if err := p.sink.Put(ctx, job); err != nil {
		p.seq.Done(job.Seq)
		return err
	}
	return nil
}

func (p *Producer) report(ctx context.Context, res Result) {
	if p.results == nil {
		return
	}
	select {
	case p.results <- res:
	case <-ctx.Done():
	}
}
