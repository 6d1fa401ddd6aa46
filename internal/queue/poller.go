package queue

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"maestro/internal/infra"
)

// PendingLister is the slice of the job repository the poller reads.
type PendingLister interface {
	ListPending(ctx context.Context, limit int) ([]int64, error)
}

// Enqueuer accepts job ids.
type Enqueuer interface {
	Enqueue(ctx context.Context, id int64) error
}

// Poller feeds pending jobs from the repository into a queue. It recovers
// jobs whose in-process signal was lost (restart, API running without a
// worker) and is the only producer when the API and worker are separate
// processes.
type Poller struct {
	Jobs     PendingLister
	Queue    Enqueuer
	Interval time.Duration
	Batch    int
	Logger   infra.Logger
}

// Run sweeps once immediately and then on an every-Interval cron schedule
// until ctx is done. A sweep still running when the next tick fires is
// skipped.
func (p *Poller) Run(ctx context.Context) {
	interval := p.Interval
	if interval < time.Second {
		interval = 2 * time.Second
	}

	p.sweep(ctx)

	c := cron.New(
		cron.WithLogger(cron.PrintfLogger(&p.Logger)),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(&p.Logger))),
	)
	c.Schedule(cron.Every(interval), cron.FuncJob(func() { p.sweep(ctx) }))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
}

func (p *Poller) sweep(ctx context.Context) {
	n, err := p.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.Logger.Error().Err(err).Msg("poller: sweep failed")
		}
		return
	}
	if n > 0 {
		p.Logger.Debug().Int("enqueued", n).Msg("poller: pending jobs enqueued")
	}
}

// Sweep enqueues one batch of pending ids and returns how many were handed
// to the queue.
func (p *Poller) Sweep(ctx context.Context) (int, error) {
	batch := p.Batch
	if batch <= 0 {
		batch = 100
	}
	ids, err := p.Jobs.ListPending(ctx, batch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if err := p.Queue.Enqueue(ctx, id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
