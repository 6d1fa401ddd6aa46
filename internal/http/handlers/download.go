package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"maestro/internal/domain"
	"maestro/pkg/zip"
)

var errNoOutputs = errors.New("job has no outputs")

// DownloadOutputs streams every output of a completed job as one zip file.
func (a *App) DownloadOutputs(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.principal(w, r); !ok {
		return
	}
	id, ok := a.jobID(w, r)
	if !ok {
		return
	}
	if a.Media == nil {
		a.error(w, http.StatusNotImplemented, "not_implemented", "downloads are not configured")
		return
	}
	view, err := a.Jobs.GetJob(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if view.Status != domain.JobStatusCompleted || len(view.Result) == 0 {
		a.fail(w, r, fmt.Errorf("%w: status %s", errNoOutputs, view.Status))
		return
	}

	files := make([]zip.File, 0, len(view.Result))
	for _, mediaID := range view.Result {
		m, p, err := a.Media.Resolve(r.Context(), mediaID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		files = append(files, zip.File{Name: m.Filename, Path: p})
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="job-%d-outputs.zip"`, id))
	if err := zip.Write(w, files); err != nil {
		// Headers are gone; all that is left is to log and cut the stream.
		zerolog.Ctx(r.Context()).Error().Err(err).Int64("job_id", id).Msg("http: output archive failed")
	}
}
