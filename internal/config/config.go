package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	// Identity provider (external) token verification.
	AuthJWTSecret string
	AuthIssuer    string
	AuthAudience  string
	AuthClockSkew time.Duration

	// Admin console API keys, argon2id hashes separated by commas.
	AdminAPIKeyHashes []string

	// Remote order-totals function.
	RemoteCalcURL     string
	RemoteCalcAPIKey  string
	RemoteCalcTimeout time.Duration

	CurrencyCode string

	CartTTL          time.Duration
	MenuCacheTTL     time.Duration
	ReportCacheTTL   time.Duration
	IdempotencyTTL   time.Duration
	WebhookReplayTTL time.Duration

	CheckoutRateLimit string

	// Shared secret couriers sign status webhooks with.
	CourierWebhookSecret string

	MenuDefaultLimit int
	MenuMaxLimit     int

	ReconcileQueue    string
	ReconcileMaxRetry int
	AsynqConcurrency  int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		AuthJWTSecret: k.String("AUTH_JWT_SECRET"),
		AuthIssuer:    k.String("AUTH_ISSUER"),
		AuthAudience:  k.String("AUTH_AUDIENCE"),
		AuthClockSkew: parseDuration(k.String("AUTH_CLOCK_SKEW"), "30s"),

		AdminAPIKeyHashes: splitAndTrim(k.String("ADMIN_API_KEY_HASHES")),

		RemoteCalcURL:     k.String("REMOTE_CALC_URL"),
		RemoteCalcAPIKey:  k.String("REMOTE_CALC_API_KEY"),
		RemoteCalcTimeout: parseDuration(k.String("REMOTE_CALC_TIMEOUT"), "5s"),

		CurrencyCode: valueOrDefault(k.String("CURRENCY_CODE"), "NGN"),

		CartTTL:          parseDuration(k.String("CART_TTL"), "168h"),
		MenuCacheTTL:     parseDuration(k.String("MENU_CACHE_TTL"), "5m"),
		ReportCacheTTL:   parseDuration(k.String("REPORT_CACHE_TTL"), "10m"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "72h"),

		CheckoutRateLimit: valueOrDefault(k.String("CHECKOUT_RATE_LIMIT"), "20-M"),

		CourierWebhookSecret: k.String("COURIER_WEBHOOK_SECRET"),

		MenuDefaultLimit: intOrDefault(k.Int("MENU_DEFAULT_LIMIT"), 20),
		MenuMaxLimit:     intOrDefault(k.Int("MENU_MAX_LIMIT"), 100),

		ReconcileQueue:    valueOrDefault(k.String("RECONCILE_QUEUE"), "reconcile"),
		ReconcileMaxRetry: intOrDefault(k.Int("RECONCILE_MAX_RETRY"), 5),
		AsynqConcurrency:  intOrDefault(k.Int("ASYNQ_CONCURRENCY"), 10),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.AuthJWTSecret == "" {
		return nil, errors.New("AUTH_JWT_SECRET is required")
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
