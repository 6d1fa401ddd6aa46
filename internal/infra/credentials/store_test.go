package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	token string
	err   error
	exec  struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestToken(t *testing.T) {
	store := NewStore(&stubExecutor{token: " abc123 "})
	key, err := store.Token(context.Background(), ProviderGemini)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "abc123" {
		t.Fatalf("expected abc123, got %q", key)
	}
}

func TestToken_NoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	key, err := store.Token(context.Background(), ProviderOpenAI)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestResolveFallsBackToEnv(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	key, err := store.Resolve(context.Background(), ProviderStability, " sk-env ")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if key != "sk-env" {
		t.Fatalf("expected sk-env, got %q", key)
	}
}

func TestResolvePrefersStored(t *testing.T) {
	store := NewStore(&stubExecutor{token: "sk-db"})
	key, err := store.Resolve(context.Background(), ProviderStability, "sk-env")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if key != "sk-db" {
		t.Fatalf("expected sk-db, got %q", key)
	}
}

func TestResolveNilStore(t *testing.T) {
	var store *Store
	key, err := store.Resolve(context.Background(), ProviderOpenAI, "sk-env")
	if err != nil || key != "sk-env" {
		t.Fatalf("expected env key, got %q %v", key, err)
	}
}

func TestResolvePropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	store := NewStore(&stubExecutor{err: boom})
	if _, err := store.Resolve(context.Background(), ProviderOpenAI, "sk-env"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestSet(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.Set(context.Background(), " OpenAI ", "secret"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[0].(string); !ok || v != ProviderOpenAI {
		t.Fatalf("expected normalized provider, got %T %v", exec.exec.args[0], exec.exec.args[0])
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
}

func TestSetRejectsEmptyAndUnknown(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.Set(context.Background(), ProviderGemini, " "); err == nil {
		t.Fatal("expected error for empty key")
	}
	if err := store.Set(context.Background(), "qwen", "secret"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
