// Package memory holds in-process implementations of the domain
// repositories. They back development runs without a database and the
// package tests of the job pipeline.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"maestro/internal/domain"
)

var (
	_ domain.JobRepository   = (*Store)(nil)
	_ domain.MediaRepository = (*MediaStore)(nil)
)

// Store keeps jobs in a map guarded by a mutex. Records are copied on the
// way in and out so callers never share memory with the store.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	jobs   map[int64]*domain.Job
	now    func() time.Time
}

// New returns an empty job store.
func New() *Store {
	return &Store{jobs: make(map[int64]*domain.Job), now: time.Now}
}

func (s *Store) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.now().UTC()
	job.ID = s.nextID
	job.Status = domain.JobStatusPending
	job.Result = nil
	job.ErrorMessage = ""
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *Store) Get(_ context.Context, id int64) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyJob(job), nil
}

// Claim moves a pending job to processing under the write lock.
func (s *Store) Claim(_ context.Context, id int64) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusPending {
		return nil, domain.ErrJobNotClaimable
	}
	job.Status = domain.JobStatusProcessing
	job.UpdatedAt = s.now().UTC()
	return copyJob(job), nil
}

func (s *Store) Complete(_ context.Context, id int64, result []int64) error {
	return s.finish(id, func(job *domain.Job) {
		job.Status = domain.JobStatusCompleted
		job.Result = append([]int64{}, result...)
		job.ErrorMessage = ""
	})
}

func (s *Store) Fail(_ context.Context, id int64, message string) error {
	return s.finish(id, func(job *domain.Job) {
		job.Status = domain.JobStatusFailed
		job.Result = []int64{}
		job.ErrorMessage = message
	})
}

func (s *Store) finish(id int64, apply func(*domain.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return domain.ErrJobNotProcessing
	}
	apply(job)
	job.UpdatedAt = s.now().UTC()
	return nil
}

// ListPending returns pending ids ordered by creation.
func (s *Store) ListPending(_ context.Context, limit int) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0)
	for id, job := range s.jobs {
		if job.Status == domain.JobStatusPending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, k int) bool { return ids[i] < ids[k] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func copyJob(job *domain.Job) *domain.Job {
	cp := *job
	cp.Params = job.Params.Clone()
	if job.Result != nil {
		cp.Result = append([]int64{}, job.Result...)
	}
	return &cp
}
