package memory

import (
	"context"
	"sync"
	"time"

	"maestro/internal/domain"
)

// MediaStore is the in-memory media table.
type MediaStore struct {
	mu     sync.RWMutex
	nextID int64
	media  map[int64]*domain.Media
}

func NewMediaStore() *MediaStore {
	return &MediaStore{media: make(map[int64]*domain.Media)}
}

// Seed stores m under its own id. It is how host-owned source media gets into
// a store that has no upload path.
func (s *MediaStore) Seed(m domain.Media) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.media[m.ID] = copyMedia(&m)
	if m.ID > s.nextID {
		s.nextID = m.ID
	}
}

func (s *MediaStore) Get(_ context.Context, id int64) (*domain.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.media[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyMedia(m), nil
}

func (s *MediaStore) Create(_ context.Context, m *domain.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	m.ID = s.nextID
	m.CreatedAt = time.Now().UTC()
	s.media[m.ID] = copyMedia(m)
	return nil
}

func (s *MediaStore) UpdateMetadata(_ context.Context, id int64, set map[string]any, unset []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.media[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Metadata == nil {
		m.Metadata = make(map[string]any, len(set))
	}
	for k, v := range set {
		m.Metadata[k] = v
	}
	for _, k := range unset {
		delete(m.Metadata, k)
	}
	return nil
}

func copyMedia(m *domain.Media) *domain.Media {
	cp := *m
	if m.ParentID != nil {
		parent := *m.ParentID
		cp.ParentID = &parent
	}
	cp.Metadata = make(map[string]any, len(m.Metadata))
	for k, v := range m.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}
