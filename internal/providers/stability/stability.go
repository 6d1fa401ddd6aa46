// Package stability adapts the Stability AI v2beta stable-image endpoints.
// Every call is one multipart POST answered with raw image bytes.
package stability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"maestro/internal/domain"
	"maestro/internal/infra"
	"maestro/internal/providers"
	"maestro/internal/storage"
)

const (
	ID   = "stability"
	Name = "Stability AI"

	defaultBaseURL  = "https://api.stability.ai/v2beta"
	defaultTimeout  = 120 * time.Second
	defaultStrength = 0.7
	outputFormat    = "png"

	outpaintPixels    = 512
	outpaintAllPixels = 256
)

const (
	endpointRemoveBackground  = "stable-image/edit/remove-background"
	endpointOutpaint          = "stable-image/edit/outpaint"
	endpointInpaint           = "stable-image/edit/inpaint"
	endpointErase             = "stable-image/edit/erase"
	endpointSearchReplace     = "stable-image/edit/search-and-replace"
	endpointReplaceBackground = "stable-image/edit/replace-background-and-relight"
	endpointStyle             = "stable-image/control/style"
	endpointSketch            = "stable-image/control/sketch"
	endpointStructure         = "stable-image/control/structure"
	endpointSD3               = "stable-image/generate/sd3"
	endpointUltra             = "stable-image/generate/ultra"
	endpointCore              = "stable-image/generate/core"
	endpointUpscaleFast       = "stable-image/upscale/fast"
	endpointUpscaleConserve   = "stable-image/upscale/conservative"
	endpointUpscaleCreative   = "stable-image/upscale/creative"
)

var searchReplacePattern = regexp.MustCompile(`(?i)Replace (.*) with (.*)`)

type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Scratch    *storage.Scratch
	Media      providers.MediaResolver
	Logger     *infra.Logger
}

type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	scratch *storage.Scratch
	media   providers.MediaResolver
	logger  *infra.Logger
}

type errorResponse struct {
	Name    string            `json:"name"`
	Message string            `json:"message"`
	Errors  []json.RawMessage `json:"errors"`
}

func New(opts Options) *Provider {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Provider{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: baseURL,
		client:  client,
		scratch: opts.Scratch,
		media:   opts.Media,
		logger:  logger,
	}
}

func (p *Provider) ID() string           { return ID }
func (p *Provider) Name() string         { return Name }
func (p *Provider) Kind() providers.Kind { return providers.KindStability }

func (p *Provider) Capabilities() providers.Capabilities {
	caps := providers.CoreCapabilities(p)
	caps[domain.OperationUpscaleFast] = providers.Handler{Image: p.UpscaleFast}
	caps[domain.OperationUpscaleConservative] = providers.Handler{Image: p.UpscaleConservative}
	caps[domain.OperationUpscaleCreative] = providers.Handler{Image: p.UpscaleCreative}
	caps[domain.OperationOutpaint] = providers.Handler{Image: p.Outpaint}
	caps[domain.OperationInpaint] = providers.Handler{Image: p.Inpaint}
	caps[domain.OperationErase] = providers.Handler{Image: p.Erase}
	caps[domain.OperationSearchReplace] = providers.Handler{Image: p.SearchReplace}
	caps[domain.OperationReplaceBackground] = providers.Handler{Image: p.ReplaceBackground}
	caps[domain.OperationSketch] = providers.Handler{Image: p.Sketch}
	caps[domain.OperationStructure] = providers.Handler{Image: p.Structure}
	caps[domain.OperationGenerateUltra] = providers.Handler{Image: p.GenerateUltra}
	caps[domain.OperationGenerateCore] = providers.Handler{Image: p.GenerateCore}
	return caps
}

func (p *Provider) RemoveBackground(ctx context.Context, req providers.Request) (string, error) {
	return p.edit(ctx, req, endpointRemoveBackground, nil)
}

// StyleTransfer uses style control: the source image supplies the style and
// the prompt the content.
func (p *Provider) StyleTransfer(ctx context.Context, req providers.Request) (string, error) {
	return p.control(ctx, req, endpointStyle)
}

// Regenerate runs SD3 image-to-image with the requested strength.
func (p *Provider) Regenerate(ctx context.Context, req providers.Request) (string, error) {
	strength, err := strengthParam(req.Params)
	if err != nil {
		return "", err
	}
	form := providers.NewForm().
		Field("prompt", req.Prompt).
		Field("output_format", outputFormat).
		File("image", req.SourcePath).
		Field("mode", "image-to-image").
		Field("strength", formatFloat(strength))
	return p.request(ctx, req.JobID, endpointSD3, form)
}

// GenerateUltra is text-to-image; the source only anchors the output media.
func (p *Provider) GenerateUltra(ctx context.Context, req providers.Request) (string, error) {
	return p.textToImage(ctx, req, endpointUltra)
}

// GenerateCore is text-to-image like GenerateUltra.
func (p *Provider) GenerateCore(ctx context.Context, req providers.Request) (string, error) {
	return p.textToImage(ctx, req, endpointCore)
}

func (p *Provider) UpscaleFast(ctx context.Context, req providers.Request) (string, error) {
	return p.upscale(ctx, req, endpointUpscaleFast)
}

func (p *Provider) UpscaleConservative(ctx context.Context, req providers.Request) (string, error) {
	return p.upscale(ctx, req, endpointUpscaleConserve)
}

func (p *Provider) UpscaleCreative(ctx context.Context, req providers.Request) (string, error) {
	return p.upscale(ctx, req, endpointUpscaleCreative)
}

// Outpaint extends the canvas in params["direction"].
func (p *Provider) Outpaint(ctx context.Context, req providers.Request) (string, error) {
	fields := OutpaintFields(req.Params.String("direction"))
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		fields["prompt"] = prompt
	}
	return p.edit(ctx, req, endpointOutpaint, fields)
}

func (p *Provider) Inpaint(ctx context.Context, req providers.Request) (string, error) {
	maskPath, err := p.requireMask(ctx, req, domain.OperationInpaint)
	if err != nil {
		return "", err
	}
	form := providers.NewForm().
		File("image", req.SourcePath).
		File("mask", maskPath).
		Field("prompt", req.Prompt).
		Field("output_format", outputFormat)
	return p.request(ctx, req.JobID, endpointInpaint, form)
}

func (p *Provider) Erase(ctx context.Context, req providers.Request) (string, error) {
	maskPath, err := p.requireMask(ctx, req, domain.OperationErase)
	if err != nil {
		return "", err
	}
	form := providers.NewForm().
		File("image", req.SourcePath).
		File("mask", maskPath).
		Field("output_format", outputFormat)
	return p.request(ctx, req.JobID, endpointErase, form)
}

// SearchReplace expects a prompt of the form "Replace <object> with <new object>".
func (p *Provider) SearchReplace(ctx context.Context, req providers.Request) (string, error) {
	search, replace, ok := ParseSearchReplace(req.Prompt)
	if !ok {
		return "", fmt.Errorf(`%w: for search and replace use the format "Replace [object] with [new object]"`, domain.ErrInvalidParams)
	}
	return p.edit(ctx, req, endpointSearchReplace, map[string]string{
		"search_prompt": search,
		"prompt":        replace,
	})
}

// ReplaceBackground relights the subject in front of a generated background.
// The endpoint names its image field subject_image.
func (p *Provider) ReplaceBackground(ctx context.Context, req providers.Request) (string, error) {
	form := providers.NewForm().
		File("subject_image", req.SourcePath).
		Field("background_prompt", req.Prompt).
		Field("output_format", outputFormat)
	return p.request(ctx, req.JobID, endpointReplaceBackground, form)
}

func (p *Provider) Sketch(ctx context.Context, req providers.Request) (string, error) {
	return p.control(ctx, req, endpointSketch)
}

func (p *Provider) Structure(ctx context.Context, req providers.Request) (string, error) {
	return p.control(ctx, req, endpointStructure)
}

// OutpaintFields maps a direction onto the endpoint's pixel fields. Unknown
// directions extend downwards.
func OutpaintFields(direction string) map[string]string {
	px := strconv.Itoa(outpaintPixels)
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "up":
		return map[string]string{"up": px}
	case "left":
		return map[string]string{"left": px}
	case "right":
		return map[string]string{"right": px}
	case "all":
		all := strconv.Itoa(outpaintAllPixels)
		return map[string]string{"up": all, "down": all, "left": all, "right": all}
	default:
		return map[string]string{"down": px}
	}
}

// ParseSearchReplace splits "Replace cat with dog" into its two prompts.
func ParseSearchReplace(prompt string) (string, string, bool) {
	m := searchReplacePattern.FindStringSubmatch(prompt)
	if m == nil {
		return "", "", false
	}
	search, replace := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	if search == "" || replace == "" {
		return "", "", false
	}
	return search, replace, true
}

func (p *Provider) control(ctx context.Context, req providers.Request, endpoint string) (string, error) {
	form := providers.NewForm().
		File("image", req.SourcePath).
		Field("prompt", req.Prompt).
		Field("output_format", outputFormat)
	if _, ok := req.Params["strength"]; ok && endpoint != endpointStyle {
		strength, err := strengthParam(req.Params)
		if err != nil {
			return "", err
		}
		form.Field("control_strength", formatFloat(strength))
	}
	return p.request(ctx, req.JobID, endpoint, form)
}

func (p *Provider) textToImage(ctx context.Context, req providers.Request, endpoint string) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: %s requires a prompt", domain.ErrInvalidParams, path.Base(endpoint))
	}
	form := providers.NewForm().
		Field("prompt", prompt).
		Field("output_format", outputFormat)
	return p.request(ctx, req.JobID, endpoint, form)
}

func (p *Provider) upscale(ctx context.Context, req providers.Request, endpoint string) (string, error) {
	form := providers.NewForm().
		File("image", req.SourcePath).
		Field("output_format", outputFormat)
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		form.Field("prompt", prompt)
	}
	return p.request(ctx, req.JobID, endpoint, form)
}

func (p *Provider) edit(ctx context.Context, req providers.Request, endpoint string, extra map[string]string) (string, error) {
	form := providers.NewForm().
		File("image", req.SourcePath).
		Field("output_format", outputFormat)
	for _, k := range sortedKeys(extra) {
		form.Field(k, extra[k])
	}
	return p.request(ctx, req.JobID, endpoint, form)
}

func (p *Provider) requireMask(ctx context.Context, req providers.Request, op domain.Operation) (string, error) {
	maskPath, err := providers.MaskPath(ctx, p.media, req.Params)
	if err != nil {
		return "", err
	}
	if maskPath == "" {
		return "", fmt.Errorf("%w: %s requires a mask (mask_id)", domain.ErrInvalidParams, op)
	}
	return maskPath, nil
}

func (p *Provider) request(ctx context.Context, jobID int64, endpoint string, form *providers.Form) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%w: stability api key is missing", domain.ErrProviderConfig)
	}
	body, ctype, err := form.Encode()
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", domain.ErrProviderAPI, err)
	}
	url := p.baseURL + "/" + endpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", ctype)
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Accept", "image/*")

	p.logger.Debug().Int64("job_id", jobID).Str("endpoint", endpoint).Msg("stability: requesting")
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: stability request: %s", domain.ErrProviderAPI, providers.TransportError(err))
	}
	defer resp.Body.Close()

	raw, err := providers.ReadBody(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read stability response: %v", domain.ErrProviderAPI, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := errorMessage(raw)
		p.logger.Warn().Int64("job_id", jobID).Str("endpoint", endpoint).Int("status", resp.StatusCode).Str("error", msg).Msg("stability: api error")
		return "", fmt.Errorf("%w: stability api error: %s", domain.ErrProviderAPI, msg)
	}

	respType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(respType, "application/json") || (len(raw) > 0 && raw[0] == '{') {
		return "", fmt.Errorf("%w: stability returned json instead of an image: %s", domain.ErrProviderAPI, providers.Truncate(string(raw), 200))
	}
	return p.scratch.WriteTemp("stability", providers.ExtensionForMIME(respType), raw)
}

func errorMessage(raw []byte) string {
	var env errorResponse
	if err := json.Unmarshal(raw, &env); err == nil {
		for _, e := range env.Errors {
			var s string
			if json.Unmarshal(e, &s) == nil && s != "" {
				return s
			}
			var obj struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(e, &obj) == nil && obj.Message != "" {
				return obj.Message
			}
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return providers.Truncate(string(raw), 200)
}

func strengthParam(params domain.Params) (float64, error) {
	strength, err := params.Float("strength", defaultStrength)
	if err != nil {
		return 0, err
	}
	if strength < 0 || strength > 1 {
		return 0, fmt.Errorf("%w: strength must be between 0 and 1", domain.ErrInvalidParams)
	}
	return strength, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ providers.Provider = (*Provider)(nil)
