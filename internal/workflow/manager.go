package workflow

import (
	"context"
	"log/slog"
	"time"

	"audiotagger/internal/config"
	"audiotagger/internal/ledger"
	"audiotagger/internal/logging"
	"audiotagger/internal/pipeline"
	"audiotagger/internal/results"
	"audiotagger/internal/services"
	"audiotagger/internal/services/analysis"
	"audiotagger/internal/tagtypes"
)

// Manager coordinates the tag and export workflows for one configuration.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger
	client pipeline.Client
	ledger *ledger.Store
	now    func() time.Time
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithClient replaces the analysis client built from configuration.
func WithClient(client pipeline.Client) ManagerOption {
	return func(m *Manager) {
		m.client = client
	}
}

// WithLedger uses an already open ledger instead of cfg.Paths.LedgerPath.
// The caller keeps ownership.
func WithLedger(store *ledger.Store) ManagerOption {
	return func(m *Manager) {
		m.ledger = store
	}
}

// WithClock overrides the time source used for log and folder names.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "workflow"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BaseURL returns the analysis endpoint for the configured mode.
func BaseURL(cfg *config.Config) string {
	if cfg.API.BaseURL != "" {
		return cfg.API.BaseURL
	}
	if cfg.TestMode() {
		return analysis.TestBaseURL
	}
	return analysis.ProductionBaseURL
}

func (m *Manager) analysisClient(observer analysis.Observer) (pipeline.Client, error) {
	if m.client != nil {
		return m.client, nil
	}
	if err := m.cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	clientCfg := analysis.Config{
		BaseURL:        BaseURL(m.cfg),
		APIKey:         m.cfg.API.APIKey,
		TimeoutSeconds: m.cfg.API.TimeoutSeconds,
		Retry:          m.cfg.RetryPolicy(),
	}
	if m.cfg.TestMode() {
		clientCfg.RatePerSecond = m.cfg.API.TestModeRatePerSecond
	}
	return analysis.NewClient(clientCfg,
		analysis.WithLogger(m.logger),
		analysis.WithObserver(observer),
	), nil
}

// openLedger returns the ledger to record into and a release func. A ledger
// that cannot be opened is skipped with a warning.
func (m *Manager) openLedger(ctx context.Context) (*ledger.Store, func()) {
	if m.ledger != nil {
		return m.ledger, func() {}
	}
	if m.cfg.Paths.LedgerPath == "" {
		return nil, func() {}
	}
	store, err := ledger.Open(ctx, m.cfg.Paths.LedgerPath)
	if err != nil {
		logging.WarnWithContext(m.logger, "run ledger unavailable", "ledger_open",
			logging.String("path", m.cfg.Paths.LedgerPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run history will not be recorded"),
		)
		return nil, func() {}
	}
	return store, func() {
		if err := store.Close(); err != nil {
			m.logger.Warn("close run ledger", logging.Error(err))
		}
	}
}

// History returns recent runs from the ledger, newest first.
func (m *Manager) History(ctx context.Context, limit int) ([]ledger.Run, error) {
	store := m.ledger
	if store == nil {
		if m.cfg.Paths.LedgerPath == "" {
			return nil, services.Wrap(services.ErrConfiguration, "history", "", "paths.ledger_path is not set", nil)
		}
		opened, err := ledger.Open(ctx, m.cfg.Paths.LedgerPath)
		if err != nil {
			return nil, err
		}
		defer opened.Close()
		store = opened
	}
	return store.ListRuns(ctx, limit)
}

// tagSelection parses requested tag names, falling back to the configured
// default selection.
func (m *Manager) tagSelection(names []string) ([]tagtypes.Type, error) {
	if len(names) == 0 {
		names = m.cfg.Pipeline.Tags
	}
	return tagtypes.ParseList(names)
}

func (m *Manager) s3Config() results.S3Config {
	s := m.cfg.Storage
	return results.S3Config{
		Endpoint:  s.Endpoint,
		Bucket:    s.Bucket,
		Prefix:    s.Prefix,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
		UseSSL:    s.UseSSL,
		Region:    s.Region,
	}
}

func (m *Manager) dirBackend() bool {
	return m.cfg.Storage.Backend == "" || m.cfg.Storage.Backend == results.BackendDir
}
