package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"maestro/internal/http/handlers"
	"maestro/internal/infra"
	"maestro/internal/middleware"
)

type Options struct {
	JWTSecret    string
	CORSOrigins  []string
	JobRateLimit int
	// Metrics is mounted on /metrics when set.
	Metrics stdhttp.Handler
	Logger  infra.Logger
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	origins := middleware.NewOrigins(opts.CORSOrigins)
	// Websocket upgrades are checked against the same allow-list.
	app.Origins = origins

	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(opts.Logger), middleware.CORS(origins))

	r.Get("/v1/healthz", app.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Get("/v1/providers", app.ListProviders)
		r.Route("/v1/jobs", func(r chi.Router) {
			r.With(middleware.RateLimit(opts.JobRateLimit, time.Minute)).Post("/", app.CreateJob)
			r.Get("/{id}", app.GetJob)
			r.Get("/{id}/watch", app.WatchJob)
			r.Get("/{id}/outputs.zip", app.DownloadOutputs)
		})
		r.With(middleware.RateLimit(opts.JobRateLimit, time.Minute)).Post("/v1/media/{id}/auto-process", app.AutoProcessMedia)
	})

	return r
}
