package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the tutoring orchestration
// service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	PerfWindowSize   int

	AllowAnyOrigin bool

	JobTTL          time.Duration
	JobReapInterval time.Duration
	WaitTimeoutMax  time.Duration

	ClassifierModel       string
	MathModel             string
	HistoryModel          string
	EnglishModel          string
	GuardrailRewriteModel string

	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string

	ModerationTimeout time.Duration

	DatabaseURL      string
	TeacherWSBaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "minerva"),
		PerfWindowSize:   256,
		AllowAnyOrigin:   false,

		JobTTL:          time.Hour,
		JobReapInterval: 5 * time.Minute,
		WaitTimeoutMax:  30 * time.Second,

		// Model specs are "provider/model", e.g. "anthropic/claude-3-5-sonnet-latest".
		ClassifierModel:       envOrDefault("CLASSIFIER_MODEL", "openai/gpt-4o-mini"),
		MathModel:             envOrDefault("MATH_MODEL", "openai/gpt-4o"),
		HistoryModel:          envOrDefault("HISTORY_MODEL", "openai/gpt-4o"),
		EnglishModel:          envOrDefault("ENGLISH_MODEL", "openai/gpt-4o"),
		GuardrailRewriteModel: envOrDefault("GUARDRAIL_REWRITE_MODEL", "openai/gpt-4o-mini"),

		OpenAIAPIKey:    stringsTrimSpace("OPENAI_API_KEY"),
		AnthropicAPIKey: stringsTrimSpace("ANTHROPIC_API_KEY"),
		GeminiAPIKey:    stringsTrimSpace("GEMINI_API_KEY"),

		ModerationTimeout: 15 * time.Second,

		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		TeacherWSBaseURL: envOrDefault("TEACHER_WS_BASE_URL", "ws://localhost:8080"),

		ShutdownTimeout: 15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.JobTTL, err = durationFromEnv("JOB_TTL", cfg.JobTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.JobReapInterval, err = durationFromEnv("JOB_REAP_INTERVAL", cfg.JobReapInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.WaitTimeoutMax, err = durationFromEnv("WAIT_TIMEOUT_MAX", cfg.WaitTimeoutMax)
	if err != nil {
		return Config{}, err
	}
	cfg.ModerationTimeout, err = durationFromEnv("MODERATION_TIMEOUT", cfg.ModerationTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.PerfWindowSize, err = intFromEnv("PERF_WINDOW_SIZE", cfg.PerfWindowSize)
	if err != nil {
		return Config{}, err
	}

	if cfg.JobTTL < time.Minute {
		return Config{}, fmt.Errorf("JOB_TTL must be at least 1m")
	}
	if cfg.JobReapInterval < time.Second {
		return Config{}, fmt.Errorf("JOB_REAP_INTERVAL must be at least 1s")
	}
	if cfg.WaitTimeoutMax < time.Second {
		return Config{}, fmt.Errorf("WAIT_TIMEOUT_MAX must be at least 1s")
	}
	if cfg.PerfWindowSize < 1 {
		return Config{}, fmt.Errorf("PERF_WINDOW_SIZE must be positive")
	}
	for _, spec := range []struct{ key, value string }{
		{"CLASSIFIER_MODEL", cfg.ClassifierModel},
		{"MATH_MODEL", cfg.MathModel},
		{"HISTORY_MODEL", cfg.HistoryModel},
		{"ENGLISH_MODEL", cfg.EnglishModel},
		{"GUARDRAIL_REWRITE_MODEL", cfg.GuardrailRewriteModel},
	} {
		if !strings.Contains(spec.value, "/") {
			return Config{}, fmt.Errorf("%s must be provider/model, got %q", spec.key, spec.value)
		}
	}

	return cfg, nil
}

// APIKeyFor returns the configured key for a model spec's provider.
func (c Config) APIKeyFor(modelSpec string) string {
	provider, _, _ := strings.Cut(modelSpec, "/")
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return ""
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
