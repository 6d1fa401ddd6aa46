// Package mock is a development provider that returns the source image after
// a delay, so the whole job pipeline can run without credentials.
package mock

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"maestro/internal/infra"
	"maestro/internal/providers"
)

const (
	ID   = "mock"
	Name = "Mock Provider (Dev)"

	DefaultDelay = 2 * time.Second
)

type Options struct {
	// Delay simulates backend latency. Zero uses DefaultDelay; a negative
	// value disables it.
	Delay  time.Duration
	Logger *infra.Logger
}

type Provider struct {
	delay  time.Duration
	logger *infra.Logger
}

func New(opts Options) *Provider {
	delay := opts.Delay
	if delay == 0 {
		delay = DefaultDelay
	}
	if delay < 0 {
		delay = 0
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Provider{delay: delay, logger: logger}
}

func (p *Provider) ID() string           { return ID }
func (p *Provider) Name() string         { return Name }
func (p *Provider) Kind() providers.Kind { return providers.KindMock }

func (p *Provider) RemoveBackground(ctx context.Context, req providers.Request) (string, error) {
	return p.passThrough(ctx, req)
}

func (p *Provider) StyleTransfer(ctx context.Context, req providers.Request) (string, error) {
	return p.passThrough(ctx, req)
}

func (p *Provider) Regenerate(ctx context.Context, req providers.Request) (string, error) {
	return p.passThrough(ctx, req)
}

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.CoreCapabilities(p)
}

func (p *Provider) passThrough(ctx context.Context, req providers.Request) (string, error) {
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	p.logger.Debug().Int64("job_id", req.JobID).Str("source", req.SourcePath).Msg("mock: returning source image")
	return req.SourcePath, nil
}

var _ providers.Provider = (*Provider)(nil)
