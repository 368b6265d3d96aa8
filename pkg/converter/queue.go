package converter

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// JobSink accepts jobs from the producer.
type JobSink interface {
	Put(ctx context.Context, job Job) error
}

// JobQueue is a bounded FIFO of jobs shared by the producer and the
// consumers. Every job taken with Get must be acknowledged with TaskDone;
// Join waits until all jobs put so far have been acknowledged.
type JobQueue struct {
	items chan Job

	mu         sync.Mutex
	unfinished int
	idle       chan struct{} // closed while unfinished == 0

	warnAfter time.Duration
	logger    *slog.Logger
	blocked   atomic.Int64
}

// QueueOption configures a JobQueue.
type QueueOption func(*JobQueue)

// WithDispatchWarn logs a warning when a Put stays blocked longer than d.
func WithDispatchWarn(d time.Duration, loggerHandler slog.Handler) QueueOption {
	return func(q *JobQueue) {
		q.warnAfter = d
		if loggerHandler != nil {
			q.logger = slog.New(loggerHandler).With(slog.String("component", "queue"))
		}
	}
}

// NewJobQueue returns a queue holding at most capacity jobs (minimum 1).
func NewJobQueue(capacity int, opts ...QueueOption) *JobQueue {
	if capacity < 1 {
		capacity = 1
	}
	idle := make(chan struct{})
	close(idle)
	q := &JobQueue{
		items:     make(chan Job, capacity),
		idle:      idle,
		warnAfter: DefaultDispatchWarnThreshold,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Put adds job, blocking while the queue is full.
func (q *JobQueue) Put(ctx context.Context, job Job) error {
	q.mu.Lock()
	if q.unfinished == 0 {
		q.idle = make(chan struct{})
	}
	q.unfinished++
	q.mu.Unlock()

	if err := q.send(ctx, job); err != nil {
		q.TaskDone()
		return err
	}
	return nil
}

func (q *JobQueue) send(ctx context.Context, job Job) error {
	select {
	case q.items <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	q.blocked.Add(1)
	timer := time.NewTimer(q.warnAfter)
	defer timer.Stop()
	select {
	case q.items <- job:
		return nil
	case <-timer.C:
		q.logger.Warn("Job queue full, producer blocked; consumers are busy or too few",
			slog.String("path", job.RelPath), slog.Duration("threshold", q.warnAfter))
		select {
		case q.items <- job:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get removes and returns the oldest job, blocking while the queue is empty.
func (q *JobQueue) Get(ctx context.Context) (Job, error) {
	select {
	case job := <-q.items:
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// TaskDone acknowledges one job. It panics when called more often than Put.
func (q *JobQueue) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.unfinished--
	if q.unfinished < 0 {
		panic("converter: JobQueue.TaskDone called more times than Put")
	}
	if q.unfinished == 0 {
		close(q.idle)
	}
}

// Join blocks until every job put has been acknowledged, or ctx is done.
func (q *JobQueue) Join(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued jobs.
func (q *JobQueue) Len() int { return len(q.items) }

// Cap returns the queue capacity.
func (q *JobQueue) Cap() int { return cap(q.items) }

// Unfinished returns the number of jobs put but not yet acknowledged.
func (q *JobQueue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// BlockedPuts returns how many Put calls found the queue full.
func (q *JobQueue) BlockedPuts() int64 { return q.blocked.Load() }
