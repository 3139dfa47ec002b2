// Package config provides configuration loading for stitch-core services.
//
// Settings come from an optional YAML file overridden by environment
// variables, so containers can run from env alone while local runs can keep
// a checked-in file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nucleus/stitch-core/internal/connector/stitch"
)

// Config holds service configuration for the CLI and the worker.
type Config struct {
	// Stitch API settings
	APIKey    string `yaml:"apiKey"`
	AccountID string `yaml:"accountId"`
	BaseURL   string `yaml:"baseUrl"`

	// Request retry settings
	MaxRetries   int `yaml:"maxRetries"`
	RetryDelayMS int `yaml:"retryDelayMs"`

	// Polling settings (seconds; 0 timeout means unbounded)
	PollIntervalSecs      int `yaml:"pollIntervalSecs"`
	ExtractionTimeoutSecs int `yaml:"extractionTimeoutSecs"`
	LoadTimeoutSecs       int `yaml:"loadTimeoutSecs"`

	// Run history (optional; empty DSN disables it)
	RunlogDSN string `yaml:"runlogDsn"`

	// Result archive (optional; empty bucket disables it)
	ArchiveEndpoint  string `yaml:"archiveEndpoint"`
	ArchiveAccessKey string `yaml:"archiveAccessKey"`
	ArchiveSecretKey string `yaml:"archiveSecretKey"`
	ArchiveBucket    string `yaml:"archiveBucket"`
	ArchivePrefix    string `yaml:"archivePrefix"`
	ArchiveUseSSL    bool   `yaml:"archiveUseSsl"`

	// Temporal settings
	TemporalHost      string `yaml:"temporalHost"`
	TemporalNamespace string `yaml:"temporalNamespace"`
	TaskQueue         string `yaml:"taskQueue"`
}

// Load loads configuration from the optional YAML file at path, then applies
// environment overrides. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFromEnv loads configuration from environment only.
func LoadFromEnv() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	c.APIKey = getEnv("STITCH_API_KEY", c.APIKey)
	c.AccountID = getEnv("STITCH_ACCOUNT_ID", c.AccountID)
	c.BaseURL = getEnv("STITCH_BASE_URL", c.BaseURL)

	c.MaxRetries = getEnvInt("STITCH_MAX_RETRIES", c.MaxRetries)
	c.RetryDelayMS = getEnvInt("STITCH_RETRY_DELAY_MS", c.RetryDelayMS)

	c.PollIntervalSecs = getEnvInt("STITCH_POLL_INTERVAL_SECS", c.PollIntervalSecs)
	c.ExtractionTimeoutSecs = getEnvInt("STITCH_EXTRACTION_TIMEOUT_SECS", c.ExtractionTimeoutSecs)
	c.LoadTimeoutSecs = getEnvInt("STITCH_LOAD_TIMEOUT_SECS", c.LoadTimeoutSecs)

	c.RunlogDSN = getEnv("STITCH_RUNLOG_DSN", c.RunlogDSN)

	c.ArchiveEndpoint = getEnv("STITCH_ARCHIVE_ENDPOINT", c.ArchiveEndpoint)
	c.ArchiveAccessKey = getEnv("STITCH_ARCHIVE_ACCESS_KEY", c.ArchiveAccessKey)
	c.ArchiveSecretKey = getEnv("STITCH_ARCHIVE_SECRET_KEY", c.ArchiveSecretKey)
	c.ArchiveBucket = getEnv("STITCH_ARCHIVE_BUCKET", c.ArchiveBucket)
	c.ArchivePrefix = getEnv("STITCH_ARCHIVE_PREFIX", c.ArchivePrefix)
	if v := os.Getenv("STITCH_ARCHIVE_USE_SSL"); v != "" {
		c.ArchiveUseSSL = v == "true" || v == "1"
	}

	c.TemporalHost = getEnv("TEMPORAL_ADDRESS", c.TemporalHost)
	c.TemporalNamespace = getEnv("TEMPORAL_NAMESPACE", c.TemporalNamespace)
	c.TaskQueue = getEnv("STITCH_TASK_QUEUE", c.TaskQueue)
}

func (c *Config) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelayMS == 0 {
		c.RetryDelayMS = 250
	}
	if c.PollIntervalSecs == 0 {
		c.PollIntervalSecs = 10
	}
	if c.TemporalHost == "" {
		c.TemporalHost = "127.0.0.1:7233"
	}
	if c.TemporalNamespace == "" {
		c.TemporalNamespace = "default"
	}
	if c.TaskQueue == "" {
		c.TaskQueue = "stitch-replication"
	}
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// ExtractionTimeout returns the extraction timeout; zero means unbounded.
func (c *Config) ExtractionTimeout() time.Duration {
	return time.Duration(c.ExtractionTimeoutSecs) * time.Second
}

// LoadTimeout returns the load timeout; zero means unbounded.
func (c *Config) LoadTimeout() time.Duration {
	return time.Duration(c.LoadTimeoutSecs) * time.Second
}

// RetryDelay returns the request retry delay as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// StitchConfig builds the connector configuration from the service settings.
func (c *Config) StitchConfig(logger *slog.Logger) *stitch.Config {
	return &stitch.Config{
		APIKey:                   c.APIKey,
		AccountID:                c.AccountID,
		BaseURL:                  c.BaseURL,
		RequestMaxRetries:        c.MaxRetries,
		RequestRetryDelay:        c.RetryDelay(),
		DefaultPollInterval:      c.PollInterval(),
		DefaultExtractionTimeout: c.ExtractionTimeout(),
		DefaultLoadTimeout:       c.LoadTimeout(),
		Logger:                   logger,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
