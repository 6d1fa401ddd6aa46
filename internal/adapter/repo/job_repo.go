package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"maestro/internal/domain"
	"maestro/internal/infra"
	"maestro/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new pending job and fills in its generated id and timestamps.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	params, err := marshalJSON(job.Params, "{}")
	if err != nil {
		return err
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertJob, job.SourceID, job.Operation, params, job.CreatedBy)
	if err := row.Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return wrapWriteErr("insert job", err)
	}
	job.Status = domain.JobStatusPending
	job.Result = nil
	job.ErrorMessage = ""
	return nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, id int64) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJob, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// Claim atomically moves a pending job to processing.
func (r *JobRepositoryPG) Claim(ctx context.Context, id int64) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QClaimJob, id))
	if err == nil {
		return job, nil
	}
	if !infra.IsNoRows(err) {
		return nil, err
	}
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, domain.ErrJobNotClaimable
}

// Complete records a successful outcome on a processing job.
func (r *JobRepositoryPG) Complete(ctx context.Context, id int64, result []int64) error {
	if result == nil {
		result = []int64{}
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QCompleteJob, id, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotProcessing
	}
	return nil
}

// Fail records a failure message on a processing job.
func (r *JobRepositoryPG) Fail(ctx context.Context, id int64, message string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QFailJob, id, message)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotProcessing
	}
	return nil
}

// ListPending returns up to limit pending job ids, oldest first.
func (r *JobRepositoryPG) ListPending(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListPendingJobs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job            domain.Job
		status         string
		params, result []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.SourceID,
		&job.Operation,
		&params,
		&status,
		&result,
		&job.ErrorMessage,
		&job.CreatedBy,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &job.Params); err != nil {
			return nil, fmt.Errorf("decode job params: %w", err)
		}
	}
	if job.Params == nil {
		job.Params = domain.Params{}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &job.Result); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
	}
	return &job, nil
}

func marshalJSON(v any, empty string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return []byte(empty), nil
	}
	return raw, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
