package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthPingTimeout = 2 * time.Second

type healthResponse struct {
	Status          string    `json:"status"`
	Time            time.Time `json:"time"`
	Database        string    `json:"database"`
	Providers       int       `json:"providers"`
	DefaultProvider string    `json:"default_provider,omitempty"`
}

// Health reports readiness. A failing database ping answers 503 so load
// balancers stop routing job submissions to this instance; a missing default
// provider only degrades the status since jobs may pin a provider.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Time: time.Now().UTC(), Database: "disabled"}
	code := http.StatusOK

	if a.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := a.Ping(ctx); err != nil {
			resp.Status, resp.Database = "unavailable", "error"
			code = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	if a.Providers != nil {
		resp.Providers = len(a.Providers.List())
		if p, err := a.Providers.Default(); err == nil {
			resp.DefaultProvider = p.ID()
		} else if code == http.StatusOK {
			resp.Status = "degraded"
		}
	}
	a.json(w, code, resp)
}
