// Package catalog assembles the provider registry from configuration.
package catalog

import (
	"context"
	"fmt"
	"net/http"

	"maestro/internal/infra"
	"maestro/internal/infra/credentials"
	"maestro/internal/mask"
	"maestro/internal/providers"
	"maestro/internal/providers/gemini"
	"maestro/internal/providers/mock"
	"maestro/internal/providers/openai"
	"maestro/internal/providers/stability"
	"maestro/internal/storage"
)

// Deps carries what the providers need at construction time.
type Deps struct {
	Config      *infra.Config
	Credentials *credentials.Store
	Scratch     *storage.Scratch
	Media       providers.MediaResolver
	// HTTPClient overrides each provider's own client. Leave nil in
	// production so every backend keeps its timeout.
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Build registers every backend and selects the configured default. Backends
// without an API key are still registered; their calls fail with a config
// error so the job records why it could not run.
func Build(ctx context.Context, deps Deps) (*providers.Registry, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("catalog: config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		l := infra.NopLogger()
		logger = &l
	}

	key := func(provider, env string) (string, error) {
		v, err := deps.Credentials.Resolve(ctx, provider, env)
		if err != nil {
			return "", fmt.Errorf("catalog: resolve %s key: %w", provider, err)
		}
		if v == "" {
			logger.Warn().Str("provider", provider).Msg("catalog: api key not configured")
		}
		return v, nil
	}

	openaiKey, err := key(credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
	if err != nil {
		return nil, err
	}
	stabilityKey, err := key(credentials.ProviderStability, cfg.StabilityAPIKey)
	if err != nil {
		return nil, err
	}
	geminiKey, err := key(credentials.ProviderGemini, cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}

	reg := providers.NewRegistry()
	all := []providers.Provider{
		mock.New(mock.Options{Delay: cfg.MockDelay, Logger: logger}),
		openai.New(openai.Options{
			APIKey:     openaiKey,
			BaseURL:    cfg.OpenAIBaseURL,
			EditModel:  cfg.OpenAIEditModel,
			HTTPClient: deps.HTTPClient,
			Scratch:    deps.Scratch,
			Masks:      mask.Synthesizer{Scratch: deps.Scratch}.WithTolerance(cfg.MaskTolerance),
			Media:      deps.Media,
			Logger:     logger,
		}),
		stability.New(stability.Options{
			APIKey:     stabilityKey,
			BaseURL:    cfg.StabilityBaseURL,
			HTTPClient: deps.HTTPClient,
			Scratch:    deps.Scratch,
			Media:      deps.Media,
			Logger:     logger,
		}),
		gemini.New(gemini.Options{
			APIKey:     geminiKey,
			BaseURL:    cfg.GeminiBaseURL,
			Model:      cfg.GeminiModel,
			HTTPClient: deps.HTTPClient,
			Scratch:    deps.Scratch,
			Logger:     logger,
		}),
	}
	for _, p := range all {
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}

	if err := reg.SetDefault(cfg.DefaultProvider); err != nil {
		return nil, fmt.Errorf("catalog: DEFAULT_PROVIDER: %w", err)
	}
	logger.Info().Str("default", cfg.DefaultProvider).Int("providers", len(all)).Msg("catalog: providers registered")
	return reg, nil
}
