package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizePipeline()
	c.normalizeStorage()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ResultsDir, err = expandPath(strings.TrimSpace(c.Paths.ResultsDir)); err != nil {
		return fmt.Errorf("paths.results_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ExportDir) == "" {
		c.Paths.ExportDir = defaultExportDir
	}
	if c.Paths.ExportDir, err = expandPath(strings.TrimSpace(c.Paths.ExportDir)); err != nil {
		return fmt.Errorf("paths.export_dir: %w", err)
	}
	if c.Paths.LedgerPath, err = expandPath(strings.TrimSpace(c.Paths.LedgerPath)); err != nil {
		return fmt.Errorf("paths.ledger_path: %w", err)
	}
	if c.Metrics.Textfile, err = expandPath(strings.TrimSpace(c.Metrics.Textfile)); err != nil {
		return fmt.Errorf("metrics.textfile: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Mode = strings.ToUpper(strings.TrimSpace(c.API.Mode))
	if c.API.Mode == "" {
		c.API.Mode = defaultMode
	}
	c.API.APIKey = strings.TrimSpace(c.API.APIKey)
	if c.API.APIKey == "" {
		if value, ok := os.LookupEnv(APIKeyEnv); ok {
			c.API.APIKey = strings.TrimSpace(value)
		}
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = defaultTimeoutSeconds
	}
}

func (c *Config) normalizePipeline() {
	tags := make([]string, 0, len(c.Pipeline.Tags))
	for _, tag := range c.Pipeline.Tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			tags = append(tags, strings.ToUpper(trimmed))
		}
	}
	c.Pipeline.Tags = tags
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
