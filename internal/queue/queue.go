// Package queue delivers job ids to worker goroutines. It is the in-process
// replacement for a fire-and-forget scheduler: delivery is at-least-once,
// and ids already waiting or running are coalesced.
package queue

import (
	"context"
	"errors"
	"sync"

	"maestro/internal/infra"
)

// ErrClosed is returned by Enqueue after the queue stopped accepting work.
var ErrClosed = errors.New("queue: closed")

// Handler processes one job id. Errors are logged; they never stop a worker.
type Handler func(ctx context.Context, id int64) error

type Queue struct {
	ch          chan int64
	concurrency int
	logger      infra.Logger

	mu      sync.Mutex
	pending map[int64]struct{}
	closed  bool
}

type Option func(*Queue)

// WithConcurrency sets the number of worker goroutines started by Run.
func WithConcurrency(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.concurrency = n
		}
	}
}

// WithSize sets the channel buffer.
func WithSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan int64, n)
		}
	}
}

func WithLogger(l infra.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

func New(opts ...Option) *Queue {
	q := &Queue{
		ch:          make(chan int64, 100),
		concurrency: 1,
		logger:      infra.NopLogger(),
		pending:     make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue schedules id. It returns nil without queueing when id is already
// waiting or being processed. When the buffer is full it blocks until space
// frees up or ctx is done.
func (q *Queue) Enqueue(ctx context.Context, id int64) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if _, ok := q.pending[id]; ok {
		q.mu.Unlock()
		return nil
	}
	q.pending[id] = struct{}{}
	q.mu.Unlock()

	select {
	case q.ch <- id:
		return nil
	case <-ctx.Done():
		q.release(id)
		return ctx.Err()
	}
}

// Len reports how many ids are waiting or running.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has finished its current id.
func (q *Queue) Run(ctx context.Context, h Handler) {
	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			q.work(ctx, worker, h)
		}(i)
	}
	q.logger.Info().Int("workers", q.concurrency).Msg("queue: started")
	wg.Wait()

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.logger.Info().Msg("queue: stopped")
}

func (q *Queue) work(ctx context.Context, worker int, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.ch:
			q.handle(ctx, worker, id, h)
		}
	}
}

func (q *Queue) handle(ctx context.Context, worker int, id int64, h Handler) {
	defer q.release(id)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Int64("job_id", id).Int("worker", worker).Interface("panic", r).Msg("queue: handler panicked")
		}
	}()
	if err := h(ctx, id); err != nil {
		q.logger.Error().Err(err).Int64("job_id", id).Int("worker", worker).Msg("queue: handler failed")
	}
}

func (q *Queue) release(id int64) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}
