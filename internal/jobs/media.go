package jobs

import (
	"context"
	"errors"
	"fmt"

	"maestro/internal/domain"
	"maestro/internal/storage"
)

// ErrSourceNotFound is recorded when a job's source media has no readable
// file behind it.
var ErrSourceNotFound = fmt.Errorf("source file %w", domain.ErrNotFound)

// MediaPaths resolves media ids to files in the permanent store.
type MediaPaths struct {
	Media domain.MediaRepository
	Store *storage.FileStore
}

// MediaPath implements providers.MediaResolver.
func (p MediaPaths) MediaPath(ctx context.Context, id int64) (string, error) {
	_, path, err := p.Resolve(ctx, id)
	return path, err
}

// Resolve loads the media record and checks that its file exists.
func (p MediaPaths) Resolve(ctx context.Context, id int64) (*domain.Media, string, error) {
	if p.Media == nil || p.Store == nil {
		return nil, "", errors.New("jobs: media paths not configured")
	}
	m, err := p.Media.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: media %d", ErrSourceNotFound, id)
		}
		return nil, "", fmt.Errorf("load media %d: %w", id, err)
	}
	ok, err := p.Store.Exists(m.StorageKey)
	if err != nil || !ok {
		return nil, "", fmt.Errorf("%w: media %d", ErrSourceNotFound, id)
	}
	path, err := p.Store.Path(m.StorageKey)
	if err != nil {
		return nil, "", fmt.Errorf("%w: media %d", ErrSourceNotFound, id)
	}
	return m, path, nil
}
