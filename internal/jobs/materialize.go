package jobs

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"maestro/internal/domain"
	"maestro/internal/storage"
)

// Materializer turns a provider result file into a stored output media. The
// file is always copied so a provider that hands back the source path cannot
// cause the source to be moved or overwritten.
type Materializer struct {
	Media domain.MediaRepository
	Store *storage.FileStore
	Now   func() time.Time
}

// Materialize copies resultPath next to the source and records the new media
// with back-references to source, operation and job.
func (m *Materializer) Materialize(ctx context.Context, job *domain.Job, op domain.Operation, source *domain.Media, resultPath string) (*domain.Media, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: source media missing", domain.ErrOutputMaterialization)
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(resultPath), "."))
	if ext == "" {
		ext = "png"
	}
	name := OutputName(source.Filename, op, now(), ext)
	key := name
	if dir := path.Dir(source.StorageKey); dir != "." && dir != "/" {
		key = path.Join(dir, name)
	}

	dest, size, err := m.Store.Import(ctx, key, resultPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOutputMaterialization, err)
	}

	width, height := dimensions(dest, ext)
	parentID := source.ID
	out := &domain.Media{
		Filename:   name,
		StorageKey: key,
		MIME:       mimeFor(ext),
		Bytes:      size,
		Width:      width,
		Height:     height,
		ParentID:   &parentID,
		Operation:  string(op),
		Title:      fmt.Sprintf("AI %s - %s", op, displayName(source)),
		Metadata: map[string]any{
			domain.MetaParentID:    source.ID,
			domain.MetaOperation:   string(op),
			domain.MetaSourceJobID: job.ID,
		},
		CreatedBy: job.CreatedBy,
	}
	if err := m.Media.Create(ctx, out); err != nil {
		_ = os.Remove(dest)
		return nil, fmt.Errorf("%w: failed to create output attachment: %v", domain.ErrOutputMaterialization, err)
	}
	return out, nil
}

// OutputName builds "<base>-<operation>-<unix nanos>.<ext>".
func OutputName(sourceName string, op domain.Operation, at time.Time, ext string) string {
	base := strings.TrimSuffix(filepath.Base(sourceName), filepath.Ext(sourceName))
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	return fmt.Sprintf("%s-%s-%d.%s", base, op, at.UnixNano(), ext)
}

func displayName(m *domain.Media) string {
	if t := strings.TrimSpace(m.Title); t != "" {
		return t
	}
	return m.Filename
}

func mimeFor(ext string) string {
	if t := mime.TypeByExtension("." + ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return "application/octet-stream"
}

// dimensions decodes raster outputs. Vector and undecodable files report 0x0.
func dimensions(p, ext string) (int, int) {
	if ext == "svg" {
		return 0, 0
	}
	img, err := imaging.Open(p)
	if err != nil {
		return 0, 0
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}
