package config

import (
	"fmt"
	"net/url"

	"audiotagger/internal/services"
	"audiotagger/internal/tagtypes"
)

// Validate ensures the configuration is usable. Every failure wraps
// services.ErrConfiguration.
func (c *Config) Validate() error {
	checks := []func() error{
		c.validateAPI,
		c.validateRetry,
		c.validatePipeline,
		c.validateStorage,
		c.validateLogging,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return services.Wrap(services.ErrConfiguration, "config", "validate", "", err)
		}
	}
	return nil
}

func (c *Config) validateAPI() error {
	switch c.API.Mode {
	case ModeProduction, ModeTest:
	default:
		return fmt.Errorf("api.mode must be %s or %s, got %q", ModeProduction, ModeTest, c.API.Mode)
	}
	if c.API.BaseURL != "" {
		parsed, err := url.Parse(c.API.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
		}
	}
	if c.API.TimeoutSeconds < 0 {
		return fmt.Errorf("api.timeout_seconds must be positive")
	}
	if c.API.TestModeRatePerSecond < 0 {
		return fmt.Errorf("api.test_mode_rate_per_second must not be negative")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}
	if c.Retry.MultiplierSeconds < 0 || c.Retry.MinWaitSeconds < 0 || c.Retry.MaxWaitSeconds < 0 {
		return fmt.Errorf("retry wait values must not be negative")
	}
	if c.Retry.MaxWaitSeconds > 0 && c.Retry.MinWaitSeconds > c.Retry.MaxWaitSeconds {
		return fmt.Errorf("retry.min_wait_seconds must not exceed retry.max_wait_seconds")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers should be a positive integer")
	}
	if len(c.Pipeline.Tags) == 0 {
		return nil
	}
	if _, err := tagtypes.ParseList(c.Pipeline.Tags); err != nil {
		return fmt.Errorf("pipeline.tags: %w", err)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "dir":
		return nil
	case "s3":
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return fmt.Errorf("storage.endpoint and storage.bucket are required for the s3 backend")
		}
		return nil
	default:
		return fmt.Errorf("storage.backend must be dir or s3, got %q", c.Storage.Backend)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error", "critical":
	default:
		return fmt.Errorf("logging.level %q is not valid", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return fmt.Errorf("logging.retention_days must not be negative")
	}
	return nil
}
