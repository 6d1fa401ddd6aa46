// Package bootstrap assembles the runtime shared by the api and worker
// commands from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"maestro/internal/adapter/memory"
	"maestro/internal/adapter/repo"
	"maestro/internal/domain"
	"maestro/internal/infra"
	"maestro/internal/infra/credentials"
	"maestro/internal/jobs"
	"maestro/internal/providers"
	"maestro/internal/providers/catalog"
	"maestro/internal/queue"
	"maestro/internal/sqlinline"
	"maestro/internal/storage"
)

type Options struct {
	// RequireDB refuses to fall back to the in-memory store.
	RequireDB bool
	// Registerer receives the job metrics. Nil keeps them unexported.
	Registerer prometheus.Registerer
}

// Runtime holds every long-lived component.
type Runtime struct {
	Config   *infra.Config
	Logger   infra.Logger
	Jobs     domain.JobRepository
	Media    domain.MediaRepository
	Store    *storage.FileStore
	Scratch  *storage.Scratch
	Registry *providers.Registry
	Metrics  *infra.Metrics
	Queue    *queue.Queue
	Worker   *jobs.Worker
	Manager  *jobs.Manager
	Poller   *queue.Poller

	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *infra.Config, logger infra.Logger, opts Options) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger}

	var creds *credentials.Store
	switch {
	case cfg.DatabaseURL != "":
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rt.pool = pool
		runner := infra.NewSQLRunner(pool, logger)
		if err := infra.EnsureSchema(ctx, runner, sqlinline.QCreateSchema); err != nil {
			pool.Close()
			return nil, err
		}
		rt.Jobs = repo.NewJobRepository(runner)
		rt.Media = repo.NewMediaRepository(runner)
		creds = credentials.NewStore(runner)
	case opts.RequireDB:
		return nil, errors.New("DATABASE_URL is required")
	default:
		logger.Warn().Msg("bootstrap: DATABASE_URL not set, using in-memory store")
		rt.Jobs = memory.New()
		rt.Media = memory.NewMediaStore()
	}

	storagePath := cfg.StoragePath
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	store, err := storage.NewFileStore(storagePath)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Store = store
	scratch, err := storage.NewScratch(cfg.ScratchPath)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Scratch = scratch

	if mem, ok := rt.Media.(*memory.MediaStore); ok {
		n, err := SeedFromStorage(store, mem)
		if err != nil {
			logger.Warn().Err(err).Msg("bootstrap: seeding media from storage failed")
		} else if n > 0 {
			logger.Info().Int("media", n).Str("root", store.BasePath()).Msg("bootstrap: seeded media from storage")
		}
	}

	registry, err := catalog.Build(ctx, catalog.Deps{
		Config:      cfg,
		Credentials: creds,
		Scratch:     scratch,
		Media:       jobs.MediaPaths{Media: rt.Media, Store: store},
		Logger:      &rt.Logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Registry = registry
	rt.Metrics = infra.NewMetrics(opts.Registerer)

	rt.Queue = queue.New(
		queue.WithConcurrency(cfg.WorkerConcurrency),
		queue.WithSize(cfg.QueueSize),
		queue.WithLogger(logger),
	)
	rt.Worker = jobs.NewWorker(jobs.WorkerOptions{
		Jobs:     rt.Jobs,
		Media:    rt.Media,
		Store:    store,
		Scratch:  scratch,
		Registry: registry,
		Metrics:  rt.Metrics,
		Logger:   logger,
	})
	rt.Poller = &queue.Poller{
		Jobs:     rt.Jobs,
		Queue:    rt.Queue,
		Interval: cfg.WorkerPoll,
		Logger:   logger,
	}
	return rt, nil
}

// NewManager builds the job manager. Without inline workers the signal is
// skipped and the standalone worker's poller finds the job instead.
func (rt *Runtime) NewManager(inline bool) *jobs.Manager {
	var q jobs.Enqueuer
	if inline {
		q = rt.Queue
	}
	rt.Manager = jobs.NewManager(jobs.ManagerOptions{
		Jobs:        rt.Jobs,
		Queue:       q,
		Metrics:     rt.Metrics,
		Logger:      rt.Logger,
		AutoTagging: rt.Config.AutoTagging,
		AutoSEO:     rt.Config.AutoSEO,
	})
	return rt.Manager
}

// Ping checks the database connection. It is nil-safe and reports nothing
// when the runtime uses memory stores.
func (rt *Runtime) Ping(ctx context.Context) error {
	if rt == nil || rt.pool == nil {
		return nil
	}
	return rt.pool.Ping(ctx)
}

// RunWorkers runs the poller and the worker pool until ctx is done.
func (rt *Runtime) RunWorkers(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.Poller.Run(ctx)
	}()
	rt.Queue.Run(ctx, rt.Worker.Process)
	<-done
}

func (rt *Runtime) Close() {
	if rt.pool != nil {
		rt.pool.Close()
	}
}

var imageExts = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// SeedFromStorage registers every image already in the store as source media
// so the in-memory mode has something to work on. Ids follow key order
// starting at 1.
func SeedFromStorage(store *storage.FileStore, media *memory.MediaStore) (int, error) {
	root := store.BasePath()
	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := imageExts[strings.ToLower(filepath.Ext(p))]; !ok {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk storage: %w", err)
	}
	sort.Strings(keys)
	for i, key := range keys {
		name := filepath.Base(key)
		media.Seed(domain.Media{
			ID:         int64(i + 1),
			Filename:   name,
			StorageKey: key,
			MIME:       imageExts[strings.ToLower(filepath.Ext(name))],
			Title:      strings.TrimSuffix(name, filepath.Ext(name)),
		})
	}
	return len(keys), nil
}
