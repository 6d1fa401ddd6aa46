package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"maestro/internal/domain"
	"maestro/internal/infra"
	"maestro/internal/providers"
	"maestro/internal/storage"
)

const terminalWriteTimeout = 10 * time.Second

var errNoProvider = fmt.Errorf("%w: no provider available", domain.ErrProviderConfig)

type WorkerOptions struct {
	Jobs     domain.JobRepository
	Media    domain.MediaRepository
	Store    *storage.FileStore
	Scratch  *storage.Scratch
	Registry *providers.Registry
	Metrics  *infra.Metrics
	Logger   infra.Logger
	Now      func() time.Time
}

// Worker executes claimed jobs. Provider and validation errors end up in the
// job record; Process only returns errors from the job repository itself.
type Worker struct {
	jobs     domain.JobRepository
	media    domain.MediaRepository
	paths    MediaPaths
	output   *Materializer
	scratch  *storage.Scratch
	registry *providers.Registry
	metrics  *infra.Metrics
	logger   infra.Logger
}

func NewWorker(opts WorkerOptions) *Worker {
	return &Worker{
		jobs:     opts.Jobs,
		media:    opts.Media,
		paths:    MediaPaths{Media: opts.Media, Store: opts.Store},
		output:   &Materializer{Media: opts.Media, Store: opts.Store, Now: opts.Now},
		scratch:  opts.Scratch,
		registry: opts.Registry,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// Process runs job id once. Ids that do not exist or are no longer pending are
// ignored, so repeated delivery never re-runs a provider.
func (w *Worker) Process(ctx context.Context, id int64) error {
	job, err := w.jobs.Claim(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrJobNotClaimable) {
			w.logger.Debug().Err(err).Int64("job_id", id).Msg("worker: signal ignored")
			return nil
		}
		return fmt.Errorf("claim job %d: %w", id, err)
	}

	started := time.Now()
	log := w.logger.With().Int64("job_id", job.ID).Str("operation", job.Operation).Logger()
	log.Info().Int64("source_id", job.SourceID).Msg("worker: picked job")

	result, runErr := w.run(ctx, job, &log)

	// The terminal write must land even when ctx was cancelled mid-job.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	status := domain.JobStatusCompleted
	if runErr != nil {
		status = domain.JobStatusFailed
		log.Error().Err(runErr).Msg("worker: job failed")
		err = w.jobs.Fail(wctx, job.ID, strings.ToValidUTF8(runErr.Error(), "\uFFFD"))
	} else {
		log.Info().Ints64("result", result).Dur("elapsed", time.Since(started)).Msg("worker: job completed")
		err = w.jobs.Complete(wctx, job.ID, result)
	}
	w.metrics.JobFinished(job.Operation, string(status), time.Since(started))

	if errors.Is(err, domain.ErrJobNotProcessing) {
		log.Warn().Msg("worker: job left processing before terminal write")
		return nil
	}
	if err != nil {
		return fmt.Errorf("finish job %d: %w", job.ID, err)
	}
	return nil
}

func (w *Worker) run(ctx context.Context, job *domain.Job, log *infra.Logger) ([]int64, error) {
	source, sourcePath, err := w.paths.Resolve(ctx, job.SourceID)
	if err != nil {
		return nil, err
	}

	provider, err := w.provider(job.Params)
	if err != nil {
		return nil, err
	}

	op, ok := domain.NormalizeOperation(job.Operation)
	if !ok {
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownOperation, job.Operation)
	}
	handler, err := w.registry.Resolve(provider.ID(), op)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("provider", provider.ID()).Str("resolved_operation", string(op)).Msg("worker: dispatching")
	req := providers.Request{
		JobID:      job.ID,
		SourcePath: sourcePath,
		Source:     source,
		Prompt:     job.Params.String("prompt"),
		Params:     job.Params.Clone(),
	}

	if handler.Analyze != nil {
		return nil, w.analyze(ctx, op, source, req, handler.Analyze)
	}

	outPath, err := handler.Image(ctx, req)
	if err != nil {
		return nil, err
	}
	if outPath == "" {
		return nil, fmt.Errorf("%w: %s returned no output", domain.ErrProviderAPI, provider.Name())
	}
	defer w.scratch.Remove(outPath)

	out, err := w.output.Materialize(ctx, job, op, source, outPath)
	if err != nil {
		return nil, err
	}
	return []int64{out.ID}, nil
}

// provider honours params["provider"] and otherwise takes whatever the
// registry reports as default right now.
func (w *Worker) provider(params domain.Params) (providers.Provider, error) {
	if w.registry == nil {
		return nil, errNoProvider
	}
	if id := params.String("provider"); id != "" {
		return w.registry.Get(id)
	}
	p, err := w.registry.Default()
	if err != nil {
		return nil, errNoProvider
	}
	return p, nil
}

// analyze writes metadata onto the source media instead of creating an
// output. Failures are recorded on the media as well as on the job.
func (w *Worker) analyze(ctx context.Context, op domain.Operation, source *domain.Media, req providers.Request, fn providers.AnalyzeFunc) error {
	errorKey := domain.MetaAITagsError
	if op == domain.OperationAutoSEO {
		errorKey = domain.MetaAISEOError
	}

	analysis, err := fn(ctx, req)
	if err != nil {
		if uerr := w.media.UpdateMetadata(ctx, source.ID, map[string]any{errorKey: err.Error()}, nil); uerr != nil {
			w.logger.Warn().Err(uerr).Int64("media_id", source.ID).Msg("worker: record analysis error failed")
		}
		return err
	}

	set := map[string]any{}
	switch op {
	case domain.OperationAutoTag:
		set[domain.MetaAITags] = strings.Join(analysis.Tags, ", ")
	case domain.OperationAutoSEO:
		set[domain.MetaAIAltText] = analysis.AltText
		set[domain.MetaAITitle] = analysis.Title
		set[domain.MetaAICaption] = analysis.Caption
		set[domain.MetaAIDescription] = analysis.Description
	}
	if err := w.media.UpdateMetadata(ctx, source.ID, set, []string{errorKey}); err != nil {
		return fmt.Errorf("update media %d metadata: %w", source.ID, err)
	}
	return nil
}
