package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/stackvity/book-converter/pkg/converter/document"
)

// Result is what a processed job reports to the aggregator.
type Result struct {
	Job         Job
	Status      Status
	Err         error
	Duration    time.Duration
	CacheStatus string
	// Set for converted jobs; feeds toc.json.
	Title       string
	ShortTitle  string
	SectionKind document.SectionKind
	// SkipReason is set with StatusSkipped.
	SkipReason string
}

// Processor handles one job. Implementations must be safe for concurrent use.
type Processor interface {
	Process(ctx context.Context, job Job) Result
}

// Worker pulls jobs from a queue, hands them to its Processor and
// acknowledges each one, until its context is cancelled. Results go to the
// optional results channel.
type Worker struct {
	id        int
	queue     *JobQueue
	proc      Processor
	results   chan<- Result
	logger    *slog.Logger
	completed atomic.Int64
}

// NewWorker returns a worker reading from queue.
func NewWorker(id int, queue *JobQueue, proc Processor, results chan<- Result, loggerHandler slog.Handler) *Worker {
	return &Worker{
		id:      id,
		queue:   queue,
		proc:    proc,
		results: results,
		logger:  slog.New(loggerHandler).With(slog.String("component", "worker"), slog.Int("workerID", id)),
	}
}

// Class names the worker's processor type. Cleanup runs once per class.
func (w *Worker) Class() string { return fmt.Sprintf("%T", w.proc) }

// Processor returns the processor the worker drives.
func (w *Worker) Processor() Processor { return w.proc }

// Completed returns the number of jobs acknowledged by this worker.
func (w *Worker) Completed() int64 { return w.completed.Load() }

// Run loops until ctx is cancelled. It only returns ctx's error.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug("Worker started")
	for {
		job, err := w.queue.Get(ctx)
		if err != nil {
			w.logger.Debug("Worker stopping", slog.String("reason", err.Error()))
			return err
		}
		res := w.process(ctx, job)
		if w.results != nil {
			select {
			case w.results <- res:
			case <-ctx.Done():
			}
		}
		w.queue.TaskDone()
		w.completed.Add(1)
	}
}

func (w *Worker) process(ctx context.Context, job Job) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Panic recovered while processing job",
				slog.String("path", job.RelPath),
				slog.Any("panicValue", r),
				slog.String("stack", string(debug.Stack())))
			res = Result{
				Job:      job,
				Status:   StatusFailed,
				Err:      fmt.Errorf("panic while processing %s: %v", job.RelPath, r),
				Duration: time.Since(start),
			}
		}
	}()
	job.Worker = w.id
	return w.proc.Process(ctx, job)
}

// isCancellation reports whether err only says that ctx ended.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
