package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/toko-cart/internal/money"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv   string
	Port     string
	RedisURL string

	LogFormat            string
	LogLevel             string
	MetricsNamespace     string
	EnableTracing        bool
	OTLPEndpoint         string
	TracingSamplingRatio float64

	DefaultCurrency money.Currency
	CartTTL         time.Duration
	CartKeyPrefix   string
	SessionIdleTTL  time.Duration

	// Tax settings are kept raw here and parsed by tax.ParseSettings.
	TaxRate              string
	TaxMode              string
	TaxCurrencyOverrides string
	TaxSettingsURL       string
	TaxFetchTimeout      time.Duration
	TaxCacheTTL          time.Duration

	CatalogFile string
	Vouchers    string

	IdempotencyTTL     time.Duration
	RateLimit          string
	BodyLimitBytes     int64
	// HSTSMaxAge in seconds; zero leaves Strict-Transport-Security off.
	HSTSMaxAge         int
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:               valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                 valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:             strings.TrimSpace(k.String("REDIS_URL")),
		LogFormat:            valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:             valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace:     valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko_cart"),
		EnableTracing:        parseBool(k.String("OBS_ENABLE_TRACING")),
		OTLPEndpoint:         strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSamplingRatio: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
		CartTTL:              parseDuration(k.String("CART_TTL"), "168h"),
		CartKeyPrefix:        valueOrDefault(k.String("CART_KEY_PREFIX"), "toko"),
		SessionIdleTTL:       parseDuration(k.String("SESSION_IDLE_TTL"), "30m"),
		TaxRate:              strings.TrimSpace(k.String("TAX_RATE")),
		TaxMode:              strings.TrimSpace(k.String("TAX_MODE")),
		TaxCurrencyOverrides: strings.TrimSpace(k.String("TAX_CURRENCY_OVERRIDES")),
		TaxSettingsURL:       strings.TrimSpace(k.String("TAX_SETTINGS_URL")),
		TaxFetchTimeout:      parseDuration(k.String("TAX_FETCH_TIMEOUT"), "2s"),
		TaxCacheTTL:          parseDuration(k.String("TAX_CACHE_TTL"), "5m"),
		CatalogFile:          strings.TrimSpace(k.String("CATALOG_FILE")),
		Vouchers:             strings.TrimSpace(k.String("VOUCHERS")),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimit:            valueOrDefault(k.String("RATE_LIMIT"), "60-M"),
		BodyLimitBytes:       parseInt(k.String("BODY_LIMIT_BYTES"), 16<<10),
		HSTSMaxAge:           int(parseInt(k.String("HSTS_MAX_AGE"), 0)),
		CORSAllowedOrigins:   splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
	}

	currency, ok := money.Parse(valueOrDefault(k.String("DEFAULT_CURRENCY"), string(money.XOF)))
	if !ok {
		return nil, fmt.Errorf("DEFAULT_CURRENCY %q is not supported", k.String("DEFAULT_CURRENCY"))
	}
	cfg.DefaultCurrency = currency

	if cfg.TracingSamplingRatio < 0 || cfg.TracingSamplingRatio > 1 {
		return nil, errors.New("OBS_TRACING_SAMPLING_RATIO must be between 0 and 1")
	}
	if cfg.CatalogFile == "" {
		return nil, errors.New("CATALOG_FILE is required")
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

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
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
		return strings.TrimSpace(value)
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

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseInt(value string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
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
