// Package providers defines the capability contract shared by every AI
// backend and the registry that resolves (provider, operation) pairs to
// handlers.
package providers

import (
	"context"
	"fmt"

	"maestro/internal/domain"
)

// Kind is the closed set of backend families.
type Kind string

const (
	KindMock      Kind = "mock"
	KindOpenAI    Kind = "openai"
	KindStability Kind = "stability"
	KindGemini    Kind = "gemini"
)

// Request carries everything a handler may read. Handlers validate the params
// they use and ignore the rest.
type Request struct {
	JobID      int64
	SourcePath string
	Source     *domain.Media
	Prompt     string
	Params     domain.Params
}

// ImageFunc produces a new image and returns the path of the file holding it.
// The file is either a scratch file owned by the caller or, for pass-through
// providers, the source path itself.
type ImageFunc func(ctx context.Context, req Request) (string, error)

// Analysis is the metadata produced by an analyzing operation.
type Analysis struct {
	Tags        []string
	AltText     string
	Title       string
	Caption     string
	Description string
}

// AnalyzeFunc inspects the source image and returns metadata.
type AnalyzeFunc func(ctx context.Context, req Request) (Analysis, error)

// Handler is one entry of a provider's dispatch table. Exactly one of the
// fields is set.
type Handler struct {
	Image   ImageFunc
	Analyze AnalyzeFunc
}

// Capabilities maps each operation a provider supports to its handler.
type Capabilities map[domain.Operation]Handler

// Provider is the base contract. The three core operations are always
// present on the interface; a backend that cannot perform one returns an
// error wrapping domain.ErrProviderUnsupported and leaves it out of
// Capabilities.
type Provider interface {
	ID() string
	Name() string
	Kind() Kind
	RemoveBackground(ctx context.Context, req Request) (string, error)
	StyleTransfer(ctx context.Context, req Request) (string, error)
	Regenerate(ctx context.Context, req Request) (string, error)
	Capabilities() Capabilities
}

// Unsupported builds the error returned for an operation a provider lacks.
func Unsupported(providerName string, op domain.Operation) error {
	return fmt.Errorf("%w: %s does not support %s", domain.ErrProviderUnsupported, providerName, op)
}

// CoreCapabilities returns the dispatch entries for the three base operations.
func CoreCapabilities(p Provider) Capabilities {
	return Capabilities{
		domain.OperationRemoveBackground: {Image: p.RemoveBackground},
		domain.OperationStyleTransfer:    {Image: p.StyleTransfer},
		domain.OperationRegenerate:       {Image: p.Regenerate},
	}
}

// MediaResolver maps a media id to a readable file path. Providers use it to
// load caller-supplied masks.
type MediaResolver interface {
	MediaPath(ctx context.Context, id int64) (string, error)
}

// MaskPath returns the path of the mask referenced by params["mask_id"], or
// "" when none is referenced.
func MaskPath(ctx context.Context, media MediaResolver, params domain.Params) (string, error) {
	id, err := params.Int64("mask_id")
	if err != nil {
		return "", err
	}
	if id <= 0 {
		return "", nil
	}
	if media == nil {
		return "", fmt.Errorf("%w: mask_id given but no media resolver configured", domain.ErrProviderConfig)
	}
	path, err := media.MediaPath(ctx, id)
	if err != nil {
		return "", fmt.Errorf("%w: mask %d: %v", domain.ErrInvalidParams, id, err)
	}
	return path, nil
}
