package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"maestro/internal/domain"
)

type createJobRequest struct {
	SourceID  int64          `json:"source_id"`
	Operation string         `json:"operation"`
	Params    map[string]any `json:"params"`
}

type createJobResponse struct {
	ID     int64            `json:"id"`
	Status domain.JobStatus `json:"status"`
}

// CreateJob accepts a job and returns before any provider work starts.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	id, err := a.Jobs.CreateJob(r.Context(), principal, req.SourceID, req.Operation, domain.Params(req.Params))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/jobs/"+strconv.FormatInt(id, 10))
	a.json(w, http.StatusAccepted, createJobResponse{ID: id, Status: domain.JobStatusPending})
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.principal(w, r); !ok {
		return
	}
	id, ok := a.jobID(w, r)
	if !ok {
		return
	}
	view, err := a.Jobs.GetJob(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "job id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (a *App) ListProviders(w http.ResponseWriter, r *http.Request) {
	if a.Providers == nil {
		a.json(w, http.StatusOK, []any{})
		return
	}
	a.json(w, http.StatusOK, a.Providers.List())
}
