package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type autoProcessResponse struct {
	MediaID int64   `json:"media_id"`
	Jobs    []int64 `json:"jobs"`
}

// AutoProcessMedia queues the metadata jobs enabled by AUTO_TAGGING and
// AUTO_SEO for a freshly uploaded media item.
func (a *App) AutoProcessMedia(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "media id must be a positive integer")
		return
	}
	if a.Media != nil {
		if _, _, err := a.Media.Resolve(r.Context(), id); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	ids, err := a.Jobs.AutoProcess(r.Context(), principal, id)
	if err != nil && len(ids) == 0 {
		a.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	a.json(w, http.StatusAccepted, autoProcessResponse{MediaID: id, Jobs: ids})
}
