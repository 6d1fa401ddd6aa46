package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"maestro/internal/domain"
	"maestro/internal/infra"
	"maestro/internal/sqlinline"
)

var errNilMedia = errors.New("media is nil")

// MediaRepositoryPG implements domain.MediaRepository using PostgreSQL.
type MediaRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewMediaRepository constructs a new media repository instance.
func NewMediaRepository(sql infra.SQLExecutor) *MediaRepositoryPG {
	return &MediaRepositoryPG{sql: sql}
}

func (r *MediaRepositoryPG) Get(ctx context.Context, id int64) (*domain.Media, error) {
	var (
		m    domain.Media
		meta []byte
	)
	err := r.sql.QueryRow(ctx, sqlinline.QSelectMedia, id).Scan(
		&m.ID,
		&m.Filename,
		&m.StorageKey,
		&m.MIME,
		&m.Bytes,
		&m.Width,
		&m.Height,
		&m.ParentID,
		&m.Operation,
		&m.Title,
		&meta,
		&m.CreatedBy,
		&m.CreatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode media metadata: %w", err)
		}
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	return &m, nil
}

// Create inserts the record and fills in its generated id.
func (r *MediaRepositoryPG) Create(ctx context.Context, m *domain.Media) error {
	if m == nil {
		return errNilMedia
	}
	meta, err := marshalJSON(m.Metadata, "{}")
	if err != nil {
		return err
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertMedia,
		m.Filename,
		m.StorageKey,
		m.MIME,
		m.Bytes,
		m.Width,
		m.Height,
		m.ParentID,
		m.Operation,
		m.Title,
		meta,
		m.CreatedBy,
	)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		return wrapWriteErr("insert media", err)
	}
	return nil
}

func (r *MediaRepositoryPG) UpdateMetadata(ctx context.Context, id int64, set map[string]any, unset []string) error {
	payload, err := marshalJSON(set, "{}")
	if err != nil {
		return err
	}
	if unset == nil {
		unset = []string{}
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateMediaMetadata, id, payload, unset)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.MediaRepository = (*MediaRepositoryPG)(nil)
