package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	Port              string
	DatabaseURL       string
	JWTSecret         string
	StoragePath       string
	ScratchPath       string
	DefaultProvider   string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIEditModel   string
	StabilityAPIKey   string
	StabilityBaseURL  string
	GeminiAPIKey      string
	GeminiBaseURL     string
	GeminiModel       string
	MockDelay         time.Duration
	MaskTolerance     int
	WorkerConcurrency int
	QueueSize         int
	WorkerPoll        time.Duration
	WorkerInline      bool
	AutoTagging       bool
	AutoSEO           bool
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	CORSOrigins       []string
	JobRateLimit      int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		ScratchPath:       getEnv("SCRATCH_PATH", ""),
		DefaultProvider:   strings.ToLower(getEnv("DEFAULT_PROVIDER", "mock")),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIEditModel:   getEnv("OPENAI_EDIT_MODEL", "dall-e-2"),
		StabilityAPIKey:   os.Getenv("STABILITY_API_KEY"),
		StabilityBaseURL:  getEnv("STABILITY_BASE_URL", "https://api.stability.ai/v2beta"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		MockDelay:         time.Millisecond * time.Duration(getEnvInt("MOCK_DELAY_MS", 2000)),
		MaskTolerance:     getEnvInt("MASK_TOLERANCE", 30),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		QueueSize:         getEnvInt("QUEUE_SIZE", 100),
		WorkerPoll:        time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 2)),
		WorkerInline:      getEnvBool("WORKER_INLINE", true),
		AutoTagging:       getEnvBool("AUTO_TAGGING", false),
		AutoSEO:           getEnvBool("AUTO_SEO", false),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		CORSOrigins:       getEnvList("CORS_ALLOWED_ORIGINS"),
		JobRateLimit:      getEnvInt("JOB_RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.DatabaseURL == "" && !cfg.IsDevelopment() {
		return nil, fmt.Errorf("DATABASE_URL is required outside development")
	}

	if cfg.MaskTolerance < 0 || cfg.MaskTolerance > 255 {
		return nil, fmt.Errorf("MASK_TOLERANCE must be between 0 and 255")
	}

	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
