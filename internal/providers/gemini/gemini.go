// Package gemini adapts the Gemini generateContent API. The text model cannot
// return edited pixels, so image operations ask it for SVG markup, and the
// metadata operations send the source image inline for analysis.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"maestro/internal/domain"
	"maestro/internal/infra"
	"maestro/internal/providers"
	"maestro/internal/storage"
)

const (
	ID   = "gemini"
	Name = "Google Gemini"

	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-1.5-flash"
	defaultTimeout = 60 * time.Second

	defaultSVGSubject = "A futuristic cyberpunk city"
	maxTags           = 15
)

type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Scratch    *storage.Scratch
	Logger     *infra.Logger
}

type Provider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	scratch *storage.Scratch
	logger  *infra.Logger
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

type tagAnswer struct {
	Tags []string `json:"tags"`
}

type seoAnswer struct {
	AltText     string `json:"alt_text"`
	Title       string `json:"title"`
	Caption     string `json:"caption"`
	Description string `json:"description"`
}

func New(opts Options) *Provider {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
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
		model:   model,
		client:  client,
		scratch: opts.Scratch,
		logger:  logger,
	}
}

func (p *Provider) ID() string           { return ID }
func (p *Provider) Name() string         { return Name }
func (p *Provider) Kind() providers.Kind { return providers.KindGemini }

func (p *Provider) Capabilities() providers.Capabilities {
	caps := providers.CoreCapabilities(p)
	delete(caps, domain.OperationRemoveBackground)
	caps[domain.OperationAutoTag] = providers.Handler{Analyze: p.AnalyzeAndTag}
	caps[domain.OperationAutoSEO] = providers.Handler{Analyze: p.AnalyzeAndSEO}
	return caps
}

func (p *Provider) RemoveBackground(ctx context.Context, req providers.Request) (string, error) {
	return "", providers.Unsupported(Name, domain.OperationRemoveBackground)
}

// StyleTransfer asks the model for an SVG rendition of the prompt.
func (p *Provider) StyleTransfer(ctx context.Context, req providers.Request) (string, error) {
	subject := strings.TrimSpace(req.Prompt)
	if subject == "" {
		subject = defaultSVGSubject
	}
	prompt := "Generate a simple, valid SVG code for: " + subject + ". Only return the SVG code, no markdown."

	text, err := p.generate(ctx, req.JobID, generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}
	svg := StripCodeFences(text)
	if !strings.Contains(strings.ToLower(svg), "<svg") {
		return "", fmt.Errorf("%w: gemini did not return svg markup", domain.ErrProviderAPI)
	}
	return p.scratch.WriteTemp("gemini-gen", "svg", []byte(svg))
}

func (p *Provider) Regenerate(ctx context.Context, req providers.Request) (string, error) {
	return p.StyleTransfer(ctx, req)
}

// AnalyzeAndTag returns normalized keyword tags for the source image.
func (p *Provider) AnalyzeAndTag(ctx context.Context, req providers.Request) (providers.Analysis, error) {
	prompt := "Analyze this image and return a JSON object with a single key \"tags\" holding 5 to 10 short, " +
		"lowercase keywords that describe its subject, setting, colors and style."
	var answer tagAnswer
	if err := p.analyze(ctx, req, prompt, &answer); err != nil {
		return providers.Analysis{}, err
	}
	tags := NormalizeTags(answer.Tags)
	if len(tags) == 0 {
		return providers.Analysis{}, fmt.Errorf("%w: gemini returned no tags", domain.ErrProviderAPI)
	}
	return providers.Analysis{Tags: tags}, nil
}

// AnalyzeAndSEO returns alt text, title, caption and description for the
// source image, optionally grounded on params["product_context"].
func (p *Provider) AnalyzeAndSEO(ctx context.Context, req providers.Request) (providers.Analysis, error) {
	var b strings.Builder
	b.WriteString("Analyze this image for search engine optimization. Return a JSON object with the keys ")
	b.WriteString("\"alt_text\" (under 125 characters), \"title\", \"caption\" (one sentence) and \"description\" (two sentences).")
	if product := req.Params.String("product_context"); product != "" {
		b.WriteString(" The image shows the product: ")
		b.WriteString(product)
		b.WriteString(".")
	}
	var answer seoAnswer
	if err := p.analyze(ctx, req, b.String(), &answer); err != nil {
		return providers.Analysis{}, err
	}
	out := providers.Analysis{
		AltText:     strings.TrimSpace(answer.AltText),
		Title:       NormalizeTitle(answer.Title),
		Caption:     strings.TrimSpace(answer.Caption),
		Description: strings.TrimSpace(answer.Description),
	}
	if out.AltText == "" && out.Title == "" {
		return providers.Analysis{}, fmt.Errorf("%w: gemini returned empty seo metadata", domain.ErrProviderAPI)
	}
	return out, nil
}

func (p *Provider) analyze(ctx context.Context, req providers.Request, prompt string, out any) error {
	data, err := os.ReadFile(req.SourcePath)
	if err != nil {
		return fmt.Errorf("%w: read source image: %v", domain.ErrProviderAPI, err)
	}
	text, err := p.generate(ctx, req.JobID, generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{MimeType: sourceMIME(req), Data: base64.StdEncoding.EncodeToString(data)}},
			},
		}},
		GenerationConfig: &generationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripCodeFences(text)), out); err != nil {
		return fmt.Errorf("%w: decode gemini answer: %v", domain.ErrProviderAPI, err)
	}
	return nil
}

// generate performs one generateContent call and returns the first text part.
func (p *Provider) generate(ctx context.Context, jobID int64, payload generateRequest) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%w: gemini api key is missing", domain.ErrProviderConfig)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, url.PathEscape(p.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: invoke gemini: %s", domain.ErrProviderAPI, providers.TransportError(err))
	}
	defer resp.Body.Close()

	raw, err := providers.ReadBody(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read gemini response: %v", domain.ErrProviderAPI, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("%w: gemini status %d: %s", domain.ErrProviderAPI, resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("%w: gemini status %d: %s", domain.ErrProviderAPI, resp.StatusCode, providers.Truncate(string(raw), 200))
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode gemini response: %v", domain.ErrProviderAPI, err)
	}
	for _, c := range parsed.Candidates {
		for _, pt := range c.Content.Parts {
			if strings.TrimSpace(pt.Text) != "" {
				p.logger.Debug().Int64("job_id", jobID).Str("model", p.model).Msg("gemini: text answer received")
				return pt.Text, nil
			}
		}
	}
	return "", fmt.Errorf("%w: invalid response from gemini", domain.ErrProviderAPI)
}

// StripCodeFences removes markdown code fences the model tends to add.
func StripCodeFences(s string) string {
	for _, fence := range []string{"```svg", "```xml", "```json", "```"} {
		s = strings.ReplaceAll(s, fence, "")
	}
	return strings.TrimSpace(s)
}

// NormalizeTags lower-cases, trims and de-duplicates tags, keeping order.
func NormalizeTags(raw []string) []string {
	lower := cases.Lower(language.Und)
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.Join(strings.Fields(lower.String(t)), " ")
		t = strings.Trim(t, ".,;#")
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

// NormalizeTitle title-cases titles that came back entirely in lower case and
// leaves mixed-case titles (brand names, acronyms) untouched.
func NormalizeTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" || title != strings.ToLower(title) {
		return title
	}
	return cases.Title(language.English).String(title)
}

func sourceMIME(req providers.Request) string {
	if req.Source != nil && strings.HasPrefix(req.Source.MIME, "image/") {
		return req.Source.MIME
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(req.SourcePath))); t != "" {
		return t
	}
	return "image/png"
}

var _ providers.Provider = (*Provider)(nil)
