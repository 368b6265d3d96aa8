package converter

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Report summarizes one run.
type Report struct {
	Summary        ReportSummary `json:"summary"`
	ProcessedFiles []FileInfo    `json:"processedFiles"`
	SkippedFiles   []SkippedInfo `json:"skippedFiles"`
	Errors         []ErrorInfo   `json:"errors"`
}

// ReportSummary holds the counters of a run.
type ReportSummary struct {
	RunID              string      `json:"runId"`
	InputPath          string      `json:"inputPath"`
	OutputPath         string      `json:"outputPath"`
	ProfileUsed        string      `json:"profileUsed,omitempty"`
	ConfigFilePath     string      `json:"configFilePath,omitempty"`
	Languages          []string    `json:"languages"`
	Extensions         []string    `json:"extensions"`
	TotalJobs          int         `json:"totalJobs"`
	ProcessedCount     int         `json:"processedCount"`
	CachedCount        int         `json:"cachedCount"`
	SkippedCount       int         `json:"skippedCount"`
	ErrorCount         int         `json:"errorCount"`
	FatalErrorOccurred bool        `json:"fatalError"`
	Cancelled          bool        `json:"cancelled"`
	FinalState         string      `json:"finalState"`
	OnError            OnErrorMode `json:"onError"`
	OrderedHooks       bool        `json:"orderedHooks"`
	CacheEnabled       bool        `json:"cacheEnabled"`
	Concurrency        int         `json:"concurrency"`
	DurationSeconds    float64     `json:"durationSeconds"`
	Timestamp          time.Time   `json:"timestamp"`
	SchemaVersion      string      `json:"schemaVersion"`
}

// FileInfo describes a converted job.
type FileInfo struct {
	Path        string  `json:"path"`
	OutputPath  string  `json:"outputPath"`
	Language    string  `json:"language"`
	Kind        JobKind `json:"kind"`
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	CacheStatus string  `json:"cacheStatus"`
	DurationMs  int64   `json:"durationMs"`
}

// SkippedInfo describes a declared file that was not converted.
type SkippedInfo struct {
	Path    string `json:"path"`
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}

// ErrorInfo describes a failed job, or the error that ended the run.
type ErrorInfo struct {
	Path    string `json:"path"`
	Error   string `json:"error"`
	IsFatal bool   `json:"isFatal"`
}

// reportAggregator collects results from the workers and the producer.
type reportAggregator struct {
	mu        sync.Mutex
	processed []FileInfo
	skipped   []SkippedInfo
	errors    []ErrorInfo
	cached    int
	toc       map[string][]Result
	firstErr  error
}

func newReportAggregator() *reportAggregator {
	return &reportAggregator{toc: make(map[string][]Result)}
}

// add records r and reports whether it is the first failure of the run.
func (a *reportAggregator) add(r Result) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch r.Status {
	case StatusSuccess, StatusCached:
		a.processed = append(a.processed, FileInfo{
			Path:        r.Job.RelPath,
			OutputPath:  r.Job.DestPath,
			Language:    r.Job.Language,
			Kind:        r.Job.Kind,
			ID:          r.Job.ID,
			Title:       r.Title,
			CacheStatus: r.CacheStatus,
			DurationMs:  r.Duration.Milliseconds(),
		})
		if r.Status == StatusCached {
			a.cached++
		}
		if r.Job.Kind == JobSection {
			a.toc[r.Job.Language] = append(a.toc[r.Job.Language], r)
		}
	case StatusSkipped:
		a.skipped = append(a.skipped, SkippedInfo{Path: r.Job.RelPath, Reason: r.SkipReason})
	case StatusFailed:
		if isCancellation(r.Err) {
			return false
		}
		a.errors = append(a.errors, ErrorInfo{Path: r.Job.RelPath, Error: r.Err.Error()})
		if a.firstErr == nil {
			a.firstErr = r.Err
			return true
		}
	}
	return false
}

// addFatal records the error that ended the run.
func (a *reportAggregator) addFatal(path string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, ErrorInfo{Path: path, Error: err.Error(), IsFatal: true})
}

func (a *reportAggregator) failedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.errors {
		if !e.IsFatal {
			n++
		}
	}
	return n
}

func (a *reportAggregator) sections(lang string) []Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Result(nil), a.toc[lang]...)
}

func (a *reportAggregator) report(e *Engine, startTime time.Time, runErr error) Report {
	a.mu.Lock()
	processed := append([]FileInfo{}, a.processed...)
	skipped := append([]SkippedInfo{}, a.skipped...)
	errs := append([]ErrorInfo{}, a.errors...)
	cached := a.cached
	a.mu.Unlock()

	sort.Slice(processed, func(i, j int) bool { return processed[i].Path < processed[j].Path })
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Path < skipped[j].Path })

	var langs, exts []string
	if e.producer != nil {
		langs = e.producer.Languages()
	}
	if e.exts != nil {
		exts = e.exts.Names()
	}
	failed := 0
	for _, x := range errs {
		if !x.IsFatal {
			failed++
		}
	}
	return Report{
		Summary: ReportSummary{
			RunID:              e.runID,
			InputPath:          e.opts.InputPath,
			OutputPath:         e.opts.OutputPath,
			ProfileUsed:        e.opts.ProfileName,
			ConfigFilePath:     e.opts.ConfigFilePath,
			Languages:          langs,
			Extensions:         exts,
			TotalJobs:          len(processed) + failed,
			ProcessedCount:     len(processed),
			CachedCount:        cached,
			SkippedCount:       len(skipped),
			ErrorCount:         len(errs),
			FatalErrorOccurred: runErr != nil && !errors.Is(runErr, ErrJobsFailed),
			Cancelled:          errors.Is(runErr, ErrCancelled),
			FinalState:         e.State().String(),
			OnError:            e.opts.OnErrorMode,
			OrderedHooks:       e.opts.OrderedHooks,
			CacheEnabled:       e.opts.CacheEnabled,
			Concurrency:        e.opts.Concurrency,
			DurationSeconds:    time.Since(startTime).Seconds(),
			Timestamp:          time.Now().UTC(),
			SchemaVersion:      ReportSchemaVersion,
		},
		ProcessedFiles: processed,
		SkippedFiles:   skipped,
		Errors:         errs,
	}
}
