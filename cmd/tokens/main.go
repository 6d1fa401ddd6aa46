package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"maestro/internal/infra"
	"maestro/internal/infra/credentials"
	"maestro/internal/sqlinline"
)

var envKeys = map[string]string{
	credentials.ProviderOpenAI:    "OPENAI_API_KEY",
	credentials.ProviderStability: "STABILITY_API_KEY",
	credentials.ProviderGemini:    "GEMINI_API_KEY",
}

func main() {
	_ = godotenv.Load()

	var (
		keyFlag      string
		providerFlag string
		showFlag     bool
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (falls back to the provider's env var)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderGemini, "provider to configure (openai, stability or gemini)")
	flag.BoolVar(&showFlag, "show", false, "print whether a key is stored instead of writing one")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	if !credentials.KnownProvider(provider) {
		fmt.Fprintf(os.Stderr, "unsupported provider %q\n", providerFlag)
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "tokens").Str("provider", provider).Logger()
	runner := infra.NewSQLRunner(pool, logger)
	if err := infra.EnsureSchema(ctx, runner, sqlinline.QCreateSchema); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	store := credentials.NewStore(runner)

	if showFlag {
		token, err := store.Token(ctx, provider)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read %s api key: %v\n", provider, err)
			os.Exit(1)
		}
		if token == "" {
			fmt.Printf("%s: no key stored\n", provider)
			return
		}
		fmt.Printf("%s: key stored (%s)\n", provider, mask(token))
		return
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envKeys[provider]))
	}
	if key == "" {
		fmt.Fprintf(os.Stderr, "%s API key is required via -key or %s\n", strings.ToUpper(provider), envKeys[provider])
		os.Exit(1)
	}
	if err := store.Set(ctx, provider, key); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s api key: %v\n", provider, err)
		os.Exit(1)
	}
	fmt.Printf("%s API key stored successfully\n", strings.ToUpper(provider))
}

func mask(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
