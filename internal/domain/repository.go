package domain

import "context"

// JobRepository persists jobs. Transitions out of processing are conditional
// so that terminal states stay terminal.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id int64) (*Job, error)
	// Claim moves a pending job to processing. It returns ErrJobNotClaimable
	// when the job exists but is not pending.
	Claim(ctx context.Context, id int64) (*Job, error)
	Complete(ctx context.Context, id int64, result []int64) error
	Fail(ctx context.Context, id int64, message string) error
	ListPending(ctx context.Context, limit int) ([]int64, error)
}

// MediaRepository persists media records.
type MediaRepository interface {
	Get(ctx context.Context, id int64) (*Media, error)
	Create(ctx context.Context, media *Media) error
	// UpdateMetadata merges set into the stored metadata and drops the keys
	// listed in unset.
	UpdateMetadata(ctx context.Context, id int64, set map[string]any, unset []string) error
}
