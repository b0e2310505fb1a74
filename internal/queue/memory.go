package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-antiplagiat/internal/observability"
)

// MemoryQueue is a bounded channel drained by a fixed pool of worker goroutines.
type MemoryQueue struct {
	jobs    chan Job
	workers int
	logger  zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	// done is closed by Stop to release blocked pushers.
	done    chan struct{}
	pushing sync.WaitGroup

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewMemoryQueue builds a queue holding up to size jobs, served by workers goroutines.
func NewMemoryQueue(workers, size int, logger zerolog.Logger) *MemoryQueue {
	if workers <= 0 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryQueue{
		jobs:    make(chan Job, size),
		done:    make(chan struct{}),
		workers: workers,
		logger:  logger.With().Str("component", "analysis_queue").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. It may be called once.
func (q *MemoryQueue) Start(handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.started {
		return fmt.Errorf("analysis queue already started")
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(i, handler)
	}

	q.logger.Info().Int("workers", q.workers).Int("capacity", cap(q.jobs)).Msg("analysis workers started")
	return nil
}

func (q *MemoryQueue) work(id int, handler Handler) {
	defer q.wg.Done()

	for job := range q.jobs {
		observability.QueueDepth().Set(float64(len(q.jobs)))
		q.run(id, handler, job)
	}
}

func (q *MemoryQueue) run(id int, handler Handler, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().
				Int("worker", id).
				Uint("report_id", job.ReportID).
				Interface("panic", r).
				Msg("analysis handler panicked")
		}
	}()

	handler(q.ctx, job)
}

// Enqueue adds a job without blocking; a full queue returns ErrQueueFull.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		observability.QueueDepth().Set(float64(len(q.jobs)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Push adds a job, waiting for room until ctx is done or the queue is stopped. The lock is
// not held while waiting; the jobs channel stays open until every pusher has returned.
func (q *MemoryQueue) Push(ctx context.Context, job Job) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.pushing.Add(1)
	q.mu.RUnlock()
	defer q.pushing.Done()

	select {
	case q.jobs <- job:
		observability.QueueDepth().Set(float64(len(q.jobs)))
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of jobs waiting for a worker.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

// Stop refuses new jobs and waits for queued ones to finish. When ctx expires first the
// running handlers are cancelled and ctx.Err() is returned.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.done)
		go func() {
			q.pushing.Wait()
			close(q.jobs)
		}()
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}
