package config

import "audiotagger/internal/retry"

const (
	defaultConfigPath     = "~/.config/audiotagger/config.toml"
	projectConfigName     = "audiotagger.toml"
	defaultMode           = ModeProduction
	defaultTimeoutSeconds = 120
	defaultTestModeRate   = 1.0
	defaultWorkers        = 5
	defaultLogDir         = "log"
	defaultExportDir      = "csv"
	defaultLedgerPath     = "~/.local/share/audiotagger/history.db"
	defaultStorageBackend = "dir"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultRetentionDays  = 30
)

var defaultTags = []string{"GENRE", "MOOD", "BPM", "KEY"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		API: API{
			Mode:                  defaultMode,
			TimeoutSeconds:        defaultTimeoutSeconds,
			TestModeRatePerSecond: defaultTestModeRate,
		},
		Retry: Retry{
			Attempts:          retry.DefaultAttempts,
			MultiplierSeconds: retry.DefaultMultiplier.Seconds(),
			MinWaitSeconds:    retry.DefaultMinWait.Seconds(),
			MaxWaitSeconds:    retry.DefaultMaxWait.Seconds(),
		},
		Pipeline: Pipeline{
			Workers: defaultWorkers,
			Tags:    append([]string(nil), defaultTags...),
		},
		Paths: Paths{
			LogDir:     defaultLogDir,
			ExportDir:  defaultExportDir,
			LedgerPath: defaultLedgerPath,
		},
		Storage: Storage{
			Backend: defaultStorageBackend,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultRetentionDays,
		},
	}
}
