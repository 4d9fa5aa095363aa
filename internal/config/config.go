// Package config provides configuration loading and validation for the
// feed ranking tools. It uses koanf to merge environment variables with
// optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the ranking engine and its
// callers.
type Config struct {
	// Runtime environment: development or production.
	Env string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis percentile cache. Empty disables caching.
	RedisAddr string `koanf:"redis_addr"`

	// Path to the signal-weight calibration JSON. Empty uses defaults.
	CalibrationPath string `koanf:"rank_calibration_path"`

	// Scoring engine tuning.
	Concurrency         int `koanf:"rank_concurrency"`
	GatewayTimeoutMS    int `koanf:"gateway_timeout_ms"`
	PercentileCacheTTLS int `koanf:"percentile_cache_ttl_s"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL    = errors.New("DATABASE_URL is required")
	ErrInvalidConcurrency    = errors.New("RANK_CONCURRENCY must be a positive integer")
	ErrInvalidGatewayTimeout = errors.New("GATEWAY_TIMEOUT_MS must be a positive integer")
	ErrInvalidPercentileTTL  = errors.New("PERCENTILE_CACHE_TTL_S must be a positive integer")
	ErrInvalidInteger        = errors.New("value must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultEnv                 = "development"
	DefaultConcurrency         = 8
	DefaultGatewayTimeoutMS    = 2000
	DefaultPercentileCacheTTLS = 300
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	concurrency, err := getEnvIntOrDefault("RANK_CONCURRENCY", k.Int("rank_concurrency"), DefaultConcurrency)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	gatewayTimeout, err := getEnvIntOrDefault("GATEWAY_TIMEOUT_MS", k.Int("gateway_timeout_ms"), DefaultGatewayTimeoutMS)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	percentileTTL, err := getEnvIntOrDefault("PERCENTILE_CACHE_TTL_S", k.Int("percentile_cache_ttl_s"), DefaultPercentileCacheTTLS)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cfg := &Config{
		Env:                 getEnvOrDefaultMulti([]string{"FEEDRANK_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:         getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisAddr:           getEnvOrKoanf("REDIS_ADDR", k, "redis_addr"),
		CalibrationPath:     getEnvOrKoanf("RANK_CALIBRATION_PATH", k, "rank_calibration_path"),
		Concurrency:         concurrency,
		GatewayTimeoutMS:    gatewayTimeout,
		PercentileCacheTTLS: percentileTTL,
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidInteger)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present and
// that tuning knobs are sane. Returns a slice of validation errors (empty
// if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.Concurrency <= 0 {
		errs = append(errs, ErrInvalidConcurrency)
	}
	if c.GatewayTimeoutMS <= 0 {
		errs = append(errs, ErrInvalidGatewayTimeout)
	}
	if c.PercentileCacheTTLS <= 0 {
		errs = append(errs, ErrInvalidPercentileTTL)
	}

	return errs
}

// IsProduction reports whether the runtime environment is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// GatewayTimeout returns the gateway round-trip timeout as a duration.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutMS) * time.Millisecond
}

// PercentileCacheTTL returns the percentile cache TTL as a duration.
func (c *Config) PercentileCacheTTL() time.Duration {
	return time.Duration(c.PercentileCacheTTLS) * time.Second
}

// LogSummary returns a summary of the configuration suitable for logging.
// Credentials embedded in the database URL are masked.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"env":                    c.Env,
		"database_url":           maskDatabaseURL(c.DatabaseURL),
		"redis_addr":             valueOrNotSet(c.RedisAddr),
		"rank_calibration_path":  valueOrNotSet(c.CalibrationPath),
		"rank_concurrency":       fmt.Sprintf("%d", c.Concurrency),
		"gateway_timeout_ms":     fmt.Sprintf("%d", c.GatewayTimeoutMS),
		"percentile_cache_ttl_s": fmt.Sprintf("%d", c.PercentileCacheTTLS),
	}
}

func valueOrNotSet(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL.
// Supports both postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	// Simple approach: find :// and then mask between : and @
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
