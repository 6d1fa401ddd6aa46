// Package openai adapts the OpenAI image edit and variation endpoints.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"maestro/internal/domain"
	"maestro/internal/infra"
	"maestro/internal/mask"
	"maestro/internal/providers"
	"maestro/internal/storage"
)

const (
	ID   = "openai"
	Name = "OpenAI"

	defaultBaseURL   = "https://api.openai.com/v1"
	defaultEditModel = "dall-e-2"
	defaultTimeout   = 60 * time.Second
	imageSize        = "1024x1024"

	removeBackgroundPrompt = "Isolate the main subject on a fully transparent background. Keep the subject unchanged."
	defaultStylePrompt     = "Restyle this image while preserving its composition."
)

type Options struct {
	APIKey     string
	BaseURL    string
	EditModel  string
	HTTPClient *http.Client
	Scratch    *storage.Scratch
	Masks      mask.Synthesizer
	Media      providers.MediaResolver
	Logger     *infra.Logger
}

type Provider struct {
	apiKey    string
	baseURL   string
	editModel string
	client    *http.Client
	scratch   *storage.Scratch
	masks     mask.Synthesizer
	media     providers.MediaResolver
	logger    *infra.Logger
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func New(opts Options) *Provider {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.EditModel)
	if model == "" {
		model = defaultEditModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	masks := opts.Masks
	if masks.Scratch == nil {
		masks.Scratch = opts.Scratch
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Provider{
		apiKey:    strings.TrimSpace(opts.APIKey),
		baseURL:   baseURL,
		editModel: model,
		client:    client,
		scratch:   opts.Scratch,
		masks:     masks,
		media:     opts.Media,
		logger:    logger,
	}
}

func (p *Provider) ID() string           { return ID }
func (p *Provider) Name() string         { return Name }
func (p *Provider) Kind() providers.Kind { return providers.KindOpenAI }

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.CoreCapabilities(p)
}

// RemoveBackground cuts the estimated background out locally and asks the
// edit endpoint to clean up the subject within the synthesized mask.
func (p *Provider) RemoveBackground(ctx context.Context, req providers.Request) (string, error) {
	if err := p.requireKey(); err != nil {
		return "", err
	}
	synth, err := p.synthesize(req)
	if err != nil {
		return "", err
	}
	defer p.scratch.Remove(synth.TransparentPath, synth.MaskPath)

	return p.edit(ctx, req.JobID, synth.TransparentPath, synth.MaskPath, removeBackgroundPrompt)
}

// StyleTransfer edits the source within a mask. A caller mask (mask_id) wins
// over a synthesized one.
func (p *Provider) StyleTransfer(ctx context.Context, req providers.Request) (string, error) {
	if err := p.requireKey(); err != nil {
		return "", err
	}
	maskPath, err := providers.MaskPath(ctx, p.media, req.Params)
	if err != nil {
		return "", err
	}
	if maskPath == "" {
		synth, err := p.synthesize(req)
		if err != nil {
			return "", err
		}
		defer p.scratch.Remove(synth.TransparentPath, synth.MaskPath)
		maskPath = synth.MaskPath
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = defaultStylePrompt
	}
	return p.edit(ctx, req.JobID, req.SourcePath, maskPath, prompt)
}

// Regenerate asks for a variation of the source image.
func (p *Provider) Regenerate(ctx context.Context, req providers.Request) (string, error) {
	if err := p.requireKey(); err != nil {
		return "", err
	}
	form := providers.NewForm().
		File("image", req.SourcePath).
		Field("n", "1").
		Field("size", imageSize)
	return p.submit(ctx, req.JobID, "/images/variations", form)
}

func (p *Provider) edit(ctx context.Context, jobID int64, imagePath, maskPath, prompt string) (string, error) {
	form := providers.NewForm().
		File("image", imagePath).
		File("mask", maskPath).
		Field("prompt", prompt).
		Field("model", p.editModel).
		Field("n", "1").
		Field("size", imageSize)
	return p.submit(ctx, jobID, "/images/edits", form)
}

func (p *Provider) submit(ctx context.Context, jobID int64, path string, form *providers.Form) (string, error) {
	body, ctype, err := form.Encode()
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", domain.ErrProviderAPI, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", ctype)
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	started := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: openai request: %s", domain.ErrProviderAPI, providers.TransportError(err))
	}
	defer resp.Body.Close()

	raw, err := providers.ReadBody(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read openai response: %v", domain.ErrProviderAPI, err)
	}
	p.logger.Debug().
		Int64("job_id", jobID).
		Str("endpoint", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("openai: response received")

	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("%w: openai api error: %s", domain.ErrProviderAPI, apiErr.Error.Message)
		}
		return "", fmt.Errorf("%w: openai api error: status %d: %s", domain.ErrProviderAPI, resp.StatusCode, providers.Truncate(string(raw), 200))
	}

	var parsed imageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || len(parsed.Data) == 0 {
		return "", fmt.Errorf("%w: invalid response from openai", domain.ErrProviderAPI)
	}
	first := parsed.Data[0]
	switch {
	case first.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return "", fmt.Errorf("%w: decode image: %v", domain.ErrProviderAPI, err)
		}
		return p.scratch.WriteTemp("openai", "png", data)
	case first.URL != "":
		data, ctype, err := providers.Download(ctx, p.client, first.URL)
		if err != nil {
			return "", err
		}
		return p.scratch.WriteTemp("openai", providers.ExtensionForMIME(ctype), data)
	default:
		return "", fmt.Errorf("%w: invalid response from openai", domain.ErrProviderAPI)
	}
}

func (p *Provider) synthesize(req providers.Request) (mask.Result, error) {
	synth := p.masks
	if _, ok := req.Params["tolerance"]; ok {
		tol, err := req.Params.Float("tolerance", mask.DefaultTolerance)
		if err != nil {
			return mask.Result{}, err
		}
		if tol < 0 || tol > 255 {
			return mask.Result{}, fmt.Errorf("%w: tolerance must be between 0 and 255", domain.ErrInvalidParams)
		}
		synth = synth.WithTolerance(int(tol))
	}
	return synth.Synthesize(req.SourcePath)
}

func (p *Provider) requireKey() error {
	if p.apiKey == "" {
		return fmt.Errorf("%w: openai api key is missing", domain.ErrProviderConfig)
	}
	return nil
}

var _ providers.Provider = (*Provider)(nil)
