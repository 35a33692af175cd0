package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"audiotagger/internal/retry"
	"audiotagger/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// API modes.
const (
	ModeProduction = "PRODUCTION"
	ModeTest       = "TEST"
)

// APIKeyEnv is consulted when api.api_key is empty.
const APIKeyEnv = "AUDIOTAGGER_API_KEY"

// API contains the analysis service connection settings.
type API struct {
	Mode                  string  `toml:"mode"`
	APIKey                string  `toml:"api_key"`
	BaseURL               string  `toml:"base_url"`
	TimeoutSeconds        int     `toml:"timeout_seconds"`
	TestModeRatePerSecond float64 `toml:"test_mode_rate_per_second"`
}

// Retry contains the backoff applied to every analysis call.
type Retry struct {
	Attempts          int     `toml:"attempts"`
	MultiplierSeconds float64 `toml:"multiplier_seconds"`
	MinWaitSeconds    float64 `toml:"min_wait_seconds"`
	MaxWaitSeconds    float64 `toml:"max_wait_seconds"`
}

// Pipeline contains worker pool and default tag selection settings.
type Pipeline struct {
	Workers int      `toml:"workers"`
	Tags    []string `toml:"tags"`
}

// Paths contains output locations.
type Paths struct {
	LogDir     string `toml:"log_dir"`
	ResultsDir string `toml:"results_dir"`
	ExportDir  string `toml:"export_dir"`
	LedgerPath string `toml:"ledger_path"`
}

// Export contains tabular export options.
type Export struct {
	Parquet bool `toml:"parquet"`
}

// Storage selects where per-asset result records live.
type Storage struct {
	Backend   string `toml:"backend"`
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Region    string `toml:"region"`
}

// Metrics contains Prometheus textfile export settings.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for audiotagger.
type Config struct {
	API      API      `toml:"api"`
	Retry    Retry    `toml:"retry"`
	Pipeline Pipeline `toml:"pipeline"`
	Paths    Paths    `toml:"paths"`
	Export   Export   `toml:"export"`
	Storage  Storage  `toml:"storage"`
	Metrics  Metrics  `toml:"metrics"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. It returns the
// config, the path that was consulted, and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	loadDotEnv()
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, services.Wrap(services.ErrConfiguration, "config", "parse", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads .env then .env.local from the working directory. Variables
// already present in the environment win.
func loadDotEnv() {
	for _, name := range []string{".env", ".env.local"} {
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			_ = godotenv.Load(name)
		}
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// TestMode reports whether the sandbox API is selected.
func (c *Config) TestMode() bool {
	return c.API.Mode == ModeTest
}

// RequireAPIKey fails when no credential is configured. Only commands that
// contact the analysis service call it.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.API.APIKey) != "" {
		return nil
	}
	path, err := DefaultConfigPath()
	if err != nil {
		path = defaultConfigPath
	}
	return services.Wrap(services.ErrConfiguration, "config", "",
		fmt.Sprintf("api.api_key is required. Set %s or edit %s (create with 'audiotagger config init')", APIKeyEnv, path), nil)
}

// RetryPolicy converts the [retry] section into a retry.Policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts:   c.Retry.Attempts,
		Multiplier: seconds(c.Retry.MultiplierSeconds),
		MinWait:    seconds(c.Retry.MinWaitSeconds),
		MaxWait:    seconds(c.Retry.MaxWaitSeconds),
	}
}

func seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
