// Package jobs owns the job lifecycle: the manager accepts and reads jobs,
// the worker executes them against the provider registry.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"maestro/internal/domain"
	"maestro/internal/infra"
)

const enqueueTimeout = 250 * time.Millisecond

// Enqueuer delivers a job id to the worker side.
type Enqueuer interface {
	Enqueue(ctx context.Context, id int64) error
}

type ManagerOptions struct {
	Jobs domain.JobRepository
	// Queue may be nil when a separate worker process polls the database.
	Queue       Enqueuer
	Metrics     *infra.Metrics
	Logger      infra.Logger
	AutoTagging bool
	AutoSEO     bool
}

// Manager is the producer side of the job lifecycle.
type Manager struct {
	jobs        domain.JobRepository
	queue       Enqueuer
	metrics     *infra.Metrics
	logger      infra.Logger
	autoTagging bool
	autoSEO     bool
}

func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		jobs:        opts.Jobs,
		queue:       opts.Queue,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		autoTagging: opts.AutoTagging,
		autoSEO:     opts.AutoSEO,
	}
}

// CreateJob persists a pending job and signals the worker. The operation is
// validated when the job runs, not here. It never waits for the provider.
func (m *Manager) CreateJob(ctx context.Context, principal domain.Principal, sourceID int64, operation string, params domain.Params) (int64, error) {
	if !principal.CanUpload() {
		return 0, domain.ErrPermissionDenied
	}
	if sourceID <= 0 {
		return 0, fmt.Errorf("%w: source_id is required", domain.ErrInvalidParams)
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		return 0, fmt.Errorf("%w: operation is required", domain.ErrInvalidParams)
	}
	if params == nil {
		params = domain.Params{}
	}

	job := &domain.Job{
		SourceID:  sourceID,
		Operation: operation,
		Params:    params.Clone(),
		Status:    domain.JobStatusPending,
		CreatedBy: principal.UserID,
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return 0, fmt.Errorf("create job: %w", err)
	}
	m.metrics.JobCreated(operation)
	m.logger.Info().
		Int64("job_id", job.ID).
		Int64("source_id", sourceID).
		Str("operation", operation).
		Int64("user_id", principal.UserID).
		Msg("jobs: job created")

	m.signal(ctx, job.ID)
	return job.ID, nil
}

// signal hands the id to the queue. A missed signal is not fatal: the job is
// already pending and the poller picks it up.
func (m *Manager) signal(ctx context.Context, id int64) {
	if m.queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	if err := m.queue.Enqueue(ctx, id); err != nil {
		m.logger.Warn().Err(err).Int64("job_id", id).Msg("jobs: enqueue failed, left for poller")
	}
}

func (m *Manager) GetJob(ctx context.Context, id int64) (domain.JobView, error) {
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return domain.JobView{}, err
	}
	return job.View(), nil
}

// AutoProcess queues the metadata jobs enabled for newly uploaded media.
func (m *Manager) AutoProcess(ctx context.Context, principal domain.Principal, mediaID int64) ([]int64, error) {
	var ops []domain.Operation
	if m.autoTagging {
		ops = append(ops, domain.OperationAutoTag)
	}
	if m.autoSEO {
		ops = append(ops, domain.OperationAutoSEO)
	}

	ids := make([]int64, 0, len(ops))
	var errs []error
	for _, op := range ops {
		id, err := m.CreateJob(ctx, principal, mediaID, string(op), nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", op, err))
			continue
		}
		ids = append(ids, id)
	}
	return ids, errors.Join(errs...)
}
