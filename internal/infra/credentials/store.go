package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"maestro/internal/infra"
	"maestro/internal/sqlinline"
)

const (
	ProviderOpenAI    = "openai"
	ProviderStability = "stability"
	ProviderGemini    = "gemini"
)

var knownProviders = map[string]struct{}{
	ProviderOpenAI:    {},
	ProviderStability: {},
	ProviderGemini:    {},
}

// KnownProvider reports whether provider has a token slot.
func KnownProvider(provider string) bool {
	_, ok := knownProviders[strings.ToLower(strings.TrimSpace(provider))]
	return ok
}

// Store keeps provider API keys in the integration_tokens table so they can be
// rotated without redeploying.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, strings.ToLower(provider))
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers the stored key and falls back to envValue.
func (s *Store) Resolve(ctx context.Context, provider, envValue string) (string, error) {
	if s == nil || s.sql == nil {
		return strings.TrimSpace(envValue), nil
	}
	token, err := s.Token(ctx, provider)
	if err != nil {
		return "", err
	}
	if token == "" {
		return strings.TrimSpace(envValue), nil
	}
	return token, nil
}

func (s *Store) Set(ctx context.Context, provider, token string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !KnownProvider(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	return s.upsert(ctx, provider, token, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
