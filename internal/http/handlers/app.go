package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"maestro/internal/domain"
	"maestro/internal/middleware"
	"maestro/internal/providers"
)

// JobService is the job manager as seen by the HTTP layer.
type JobService interface {
	CreateJob(ctx context.Context, principal domain.Principal, sourceID int64, operation string, params domain.Params) (int64, error)
	GetJob(ctx context.Context, id int64) (domain.JobView, error)
	AutoProcess(ctx context.Context, principal domain.Principal, mediaID int64) ([]int64, error)
}

// MediaFiles resolves stored media to readable files.
type MediaFiles interface {
	Resolve(ctx context.Context, id int64) (*domain.Media, string, error)
}

type App struct {
	Jobs      JobService
	Providers *providers.Registry
	// Media backs output downloads; nil disables them.
	Media MediaFiles
	// WatchInterval is how often a websocket watcher re-reads the job.
	WatchInterval time.Duration
	// Origins lists the cross-origin pages allowed to open a watch socket.
	Origins middleware.Origins
	// Ping checks the database for readiness; nil when running in memory.
	Ping func(ctx context.Context) error
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

// fail maps domain errors onto status codes. Anything unexpected is logged
// and reported as a 500 without its text.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		a.error(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, errNoOutputs):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrInvalidParams):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
	}
	return p, ok
}
