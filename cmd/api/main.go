package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"maestro/internal/bootstrap"
	"maestro/internal/http/handlers"
	httpapi "maestro/internal/http/httpapi"
	"maestro/internal/infra"
	"maestro/internal/jobs"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Registerer: reg})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: bootstrap failed")
	}
	defer rt.Close()

	manager := rt.NewManager(cfg.WorkerInline)

	var workers sync.WaitGroup
	if cfg.WorkerInline {
		workers.Add(1)
		go func() {
			defer workers.Done()
			rt.RunWorkers(ctx)
		}()
		logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("api: inline workers started")
	}

	app := &handlers.App{
		Jobs:      manager,
		Providers: rt.Registry,
		Media:     jobs.MediaPaths{Media: rt.Media, Store: rt.Store},
		Ping:      rt.Ping,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:    cfg.JWTSecret,
		CORSOrigins:  cfg.CORSOrigins,
		JobRateLimit: cfg.JobRateLimit,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:       logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: shutdown failed")
	}
	workers.Wait()
	logger.Info().Msg("api: stopped")
}
