package config

import (
	"fmt"
	"os"
	"strconv"
)

// Limits the core enforces on configurable capture sizes.
const (
	MaxRawRowCaptureLimit  = 1000
	MaxDetailTruncateLimit = 200
)

type Config struct {
	DatabaseURL            string
	NumWorkers             int
	QueueCapacity          int
	ChunkSizeBytes         int
	WatchdogTimeoutSeconds int
	LogDir                 string
	DryRun                 bool
	RawRowCaptureLimit     int
	DetailTruncateLimit    int
}

func New() (*Config, error) {
	cfg := &Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		NumWorkers:             4,
		QueueCapacity:          1000,
		ChunkSizeBytes:         64 * 1024,
		WatchdogTimeoutSeconds: 120,
		LogDir:                 "logs",
		RawRowCaptureLimit:     MaxRawRowCaptureLimit,
		DetailTruncateLimit:    MaxDetailTruncateLimit,
	}

	if dir := os.Getenv("LOG_DIR"); dir != "" {
		cfg.LogDir = dir
	}

	var err error
	cfg.NumWorkers, err = getEnvAsInt("NUM_WORKERS", cfg.NumWorkers)
	if err != nil {
		return nil, err
	}

	cfg.QueueCapacity, err = getEnvAsInt("QUEUE_CAPACITY", cfg.QueueCapacity)
	if err != nil {
		return nil, err
	}

	cfg.ChunkSizeBytes, err = getEnvAsInt("CHUNK_SIZE_BYTES", cfg.ChunkSizeBytes)
	if err != nil {
		return nil, err
	}

	cfg.WatchdogTimeoutSeconds, err = getEnvAsInt("WATCHDOG_TIMEOUT_SECONDS", cfg.WatchdogTimeoutSeconds)
	if err != nil {
		return nil, err
	}

	cfg.RawRowCaptureLimit, err = getEnvAsInt("RAW_ROW_CAPTURE_LIMIT", cfg.RawRowCaptureLimit)
	if err != nil {
		return nil, err
	}

	cfg.DetailTruncateLimit, err = getEnvAsInt("DETAIL_TRUNCATE_LIMIT", cfg.DetailTruncateLimit)
	if err != nil {
		return nil, err
	}

	cfg.DryRun, err = getEnvAsBool("DRY_RUN", false)
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.NumWorkers < 1 {
		return fmt.Errorf("NUM_WORKERS must be at least 1, got %d", c.NumWorkers)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("QUEUE_CAPACITY must be at least 1, got %d", c.QueueCapacity)
	}
	if c.ChunkSizeBytes < 1 {
		return fmt.Errorf("CHUNK_SIZE_BYTES must be at least 1, got %d", c.ChunkSizeBytes)
	}
	if c.WatchdogTimeoutSeconds < 1 {
		return fmt.Errorf("WATCHDOG_TIMEOUT_SECONDS must be at least 1, got %d", c.WatchdogTimeoutSeconds)
	}
	if c.RawRowCaptureLimit < 1 || c.RawRowCaptureLimit > MaxRawRowCaptureLimit {
		return fmt.Errorf("RAW_ROW_CAPTURE_LIMIT must be between 1 and %d, got %d", MaxRawRowCaptureLimit, c.RawRowCaptureLimit)
	}
	if c.DetailTruncateLimit < 1 || c.DetailTruncateLimit > MaxDetailTruncateLimit {
		return fmt.Errorf("DETAIL_TRUNCATE_LIMIT must be between 1 and %d, got %d", MaxDetailTruncateLimit, c.DetailTruncateLimit)
	}
	return nil
}

func getEnvAsInt(name string, defaultVal int) (int, error) {
	valueStr := os.Getenv(name)
	if valueStr == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q", name, valueStr)
	}
	return value, nil
}

func getEnvAsBool(name string, defaultVal bool) (bool, error) {
	valueStr := os.Getenv(name)
	if valueStr == "" {
		return defaultVal, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q", name, valueStr)
	}
	return value, nil
}
