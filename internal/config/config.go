// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvRoot            = "FIDIO_ROOT"
	EnvLogLevel        = "FIDIO_LOG_LEVEL"
	EnvLogFormat       = "FIDIO_LOG_FORMAT"
	EnvScanConcurrency = "FIDIO_SCAN_CONCURRENCY"
	EnvS3Bucket        = "FIDIO_S3_BUCKET"
	EnvS3Prefix        = "FIDIO_S3_PREFIX"
	EnvS3Region        = "FIDIO_S3_REGION"
	EnvS3Endpoint      = "FIDIO_S3_ENDPOINT"
	EnvS3PathStyle     = "FIDIO_S3_PATH_STYLE"
	EnvFetchRate       = "FIDIO_FETCH_RATE"
	EnvMetricsAddr     = "FIDIO_METRICS_ADDR"
	EnvArchiveDir      = "FIDIO_ARCHIVE_DIR"
	EnvS3AccessKey     = "FIDIO_S3_ACCESS_KEY"
	EnvS3SecretKey     = "FIDIO_S3_SECRET_KEY"
	EnvS3MaxAttempts   = "FIDIO_S3_MAX_ATTEMPTS"
)

var envVars = []string{
	EnvRoot,
	EnvLogLevel,
	EnvLogFormat,
	EnvScanConcurrency,
	EnvS3Bucket,
	EnvS3Prefix,
	EnvS3Region,
	EnvS3Endpoint,
	EnvS3PathStyle,
	EnvFetchRate,
	EnvMetricsAddr,
	EnvArchiveDir,
	EnvS3AccessKey,
	EnvS3SecretKey,
	EnvS3MaxAttempts,
}

type Config struct {
	values map[string]string
}

func Load() (*Config, error) {
	cfg := &Config{
		values: make(map[string]string),
	}

	cfg.loadFromEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromMap builds a Config from explicit values, for tests and flags.
func FromMap(values map[string]string) *Config {
	cfg := &Config{values: make(map[string]string, len(values))}
	for k, v := range values {
		if v != "" {
			cfg.values[k] = v
		}
	}
	return cfg
}

func (c *Config) loadFromEnv() {
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			c.values[envVar] = value
		}
	}
}

func (c *Config) validate() error {
	if v, ok := c.values[EnvScanConcurrency]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("%s must be a positive integer, got %q", EnvScanConcurrency, v)
		}
	}
	if v, ok := c.values[EnvS3MaxAttempts]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("%s must be a positive integer, got %q", EnvS3MaxAttempts, v)
		}
	}
	if v, ok := c.values[EnvFetchRate]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("%s must be a positive number, got %q", EnvFetchRate, v)
		}
	}
	return nil
}

// Set overrides a value, typically from a command-line flag.
func (c *Config) Set(key, value string) {
	if value == "" {
		return
	}
	c.values[key] = value
}

func (c *Config) GetString(key, defaultValue string) string {
	if value, exists := c.values[key]; exists {
		return value
	}
	return defaultValue
}

func (c *Config) GetBool(key string, defaultValue bool) bool {
	if value, exists := c.values[key]; exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func (c *Config) GetInt(key string, defaultValue int) int {
	if value, exists := c.values[key]; exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func (c *Config) GetFloat(key string, defaultValue float64) float64 {
	if value, exists := c.values[key]; exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// S3 holds remote store settings.
type S3 struct {
	Bucket      string
	Prefix      string
	Region      string
	Endpoint    string
	PathStyle   bool
	AccessKey   string
	SecretKey   string
	MaxAttempts int
}

func (c *Config) GetS3Config() S3 {
	return S3{
		Bucket:      c.GetString(EnvS3Bucket, ""),
		Prefix:      c.GetString(EnvS3Prefix, ""),
		Region:      c.GetString(EnvS3Region, "us-east-1"),
		Endpoint:    c.GetString(EnvS3Endpoint, ""),
		PathStyle:   c.GetBool(EnvS3PathStyle, false),
		AccessKey:   c.GetString(EnvS3AccessKey, ""),
		SecretKey:   c.GetString(EnvS3SecretKey, ""),
		MaxAttempts: c.GetInt(EnvS3MaxAttempts, 0),
	}
}
