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

// Payment modes.
const (
	PaymentModeMock    = "mock"
	PaymentModeGateway = "gateway"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	UpstreamBaseURL    string
	RedisURL           string
	CORSAllowedOrigins []string
	SessionTTL         time.Duration
	CatalogCacheTTL    time.Duration
	CookieSecure       bool
	PaymentMode        string
	GatewayMerchant    string
	GatewayAPIKey      string
	GatewayCheckoutURL string
	GatewayReturnURL   string
	RateLimitVoucher   int
	RateLimitSubmit    int
	MetricsBucketsCSV  string
	OTLPEndpoint       string
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
		UpstreamBaseURL:    strings.TrimRight(strings.TrimSpace(k.String("COMMERCE_API_URL")), "/"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		SessionTTL:         parseDuration(k.String("SESSION_TTL"), "2h"),
		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		CookieSecure:       parseBool(k.String("COOKIE_SECURE")),
		PaymentMode:        valueOrDefault(strings.ToLower(k.String("PAYMENT_MODE")), PaymentModeMock),
		GatewayMerchant:    k.String("GATEWAY_MERCHANT_CODE"),
		GatewayAPIKey:      k.String("GATEWAY_API_KEY"),
		GatewayCheckoutURL: k.String("GATEWAY_CHECKOUT_URL"),
		GatewayReturnURL:   k.String("GATEWAY_RETURN_URL"),
		RateLimitVoucher:   intOrDefault(k.Int("RATE_LIMIT_VOUCHER_PER_MIN"), 30),
		RateLimitSubmit:    intOrDefault(k.Int("RATE_LIMIT_SUBMIT_PER_MIN"), 10),
		MetricsBucketsCSV:  k.String("METRICS_BUCKETS_MS"),
		OTLPEndpoint:       k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.UpstreamBaseURL == "" {
		return nil, errors.New("COMMERCE_API_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.PaymentMode {
	case PaymentModeMock:
	case PaymentModeGateway:
		if cfg.GatewayAPIKey == "" || cfg.GatewayCheckoutURL == "" {
			return nil, errors.New("GATEWAY_API_KEY and GATEWAY_CHECKOUT_URL are required in gateway payment mode")
		}
	default:
		return nil, fmt.Errorf("unknown PAYMENT_MODE %q", cfg.PaymentMode)
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

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
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
