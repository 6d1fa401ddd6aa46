package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"maestro/internal/domain"
	"maestro/internal/infra"
	"maestro/internal/providers"
	"maestro/internal/storage"
)

func testConfig(defaultProvider string) *infra.Config {
	return &infra.Config{
		DefaultProvider: defaultProvider,
		MockDelay:       -time.Millisecond,
		MaskTolerance:   30,
		OpenAIAPIKey:    "sk-test",
	}
}

func TestBuildRegistersAllBackends(t *testing.T) {
	scratch, err := storage.NewScratch(t.TempDir())
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	reg, err := Build(context.Background(), Deps{Config: testConfig("openai"), Scratch: scratch})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	infos := reg.List()
	if len(infos) != 4 {
		t.Fatalf("expected 4 providers, got %d", len(infos))
	}
	def, err := reg.Default()
	if err != nil || def.ID() != "openai" {
		t.Fatalf("unexpected default %v %v", def, err)
	}

	if _, err := reg.Resolve("gemini", domain.OperationRemoveBackground); !errors.Is(err, domain.ErrProviderUnsupported) {
		t.Fatalf("expected gemini remove_background to be unsupported, got %v", err)
	}
	if _, err := reg.Resolve("gemini", domain.OperationAutoTag); err != nil {
		t.Fatalf("expected gemini auto tag handler, got %v", err)
	}
	if _, err := reg.Resolve("stability", domain.OperationOutpaint); err != nil {
		t.Fatalf("expected stability outpaint handler, got %v", err)
	}
}

func TestBuildRejectsUnknownDefault(t *testing.T) {
	_, err := Build(context.Background(), Deps{Config: testConfig("dalle")})
	if !errors.Is(err, providers.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestBuildRequiresConfig(t *testing.T) {
	if _, err := Build(context.Background(), Deps{}); err == nil {
		t.Fatal("expected error without config")
	}
}
