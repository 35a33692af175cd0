package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"audiotagger/internal/asset"
	"audiotagger/internal/failures"
	"audiotagger/internal/ledger"
	"audiotagger/internal/logging"
	"audiotagger/internal/metrics"
	"audiotagger/internal/pipeline"
	"audiotagger/internal/results"
	"audiotagger/internal/services"
	"audiotagger/internal/tagtypes"
)

// Failure log file patterns pruned by retention.
var failureLogPatterns = []string{"FAILED-*.csv", "FAILED_DETAILS-*.csv"}

// GenerateRequest describes a tagging run.
type GenerateRequest struct {
	// Source is a directory of audio files or a CSV list of files and links.
	Source string
	// Destination is the results folder; defaults to paths.results_dir.
	Destination string
	// Tags overrides pipeline.tags.
	Tags []string
	// Command is stored in the ledger; defaults to "generate".
	Command string
}

// GenerateResult reports a finished tagging run.
type GenerateResult struct {
	RunID          string
	Destination    string
	Summary        pipeline.Summary
	FailureList    string
	FailureDetails string
}

// Generate tags every asset under req.Source and stores one record per
// success in the destination.
func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	types, err := m.tagSelection(req.Tags)
	if err != nil {
		return GenerateResult{}, err
	}
	destination := strings.TrimSpace(req.Destination)
	if destination == "" {
		destination = m.cfg.Paths.ResultsDir
	}
	if destination == "" {
		return GenerateResult{}, services.Wrap(services.ErrValidation, "generate", "", "destination path is required", nil)
	}
	refs, err := asset.Discover(req.Source)
	if err != nil {
		return GenerateResult{}, err
	}

	recorder := metrics.New()
	client, err := m.analysisClient(recorder)
	if err != nil {
		return GenerateResult{}, err
	}

	store, release, err := m.openDestination(ctx, destination)
	if err != nil {
		return GenerateResult{}, err
	}
	defer release()

	started := m.now()
	failureLog := failures.NewLog(m.cfg.Paths.LogDir, started)
	defer func() {
		if err := failureLog.Close(); err != nil {
			m.logger.Warn("close failure log", logging.Error(err))
		}
	}()

	runnerCfg := pipeline.Config{Workers: m.cfg.Pipeline.Workers, TestMode: m.cfg.TestMode()}
	command := req.Command
	if command == "" {
		command = "generate"
	}

	ledgerStore, closeLedger := m.openLedger(ctx)
	defer closeLedger()
	run := m.startRun(ctx, ledgerStore, ledger.Run{
		Command:     command,
		Source:      req.Source,
		Destination: store.Location(),
		TagTypes:    tagtypes.Names(types),
		Workers:     m.cfg.Pipeline.Workers,
		TestMode:    m.cfg.TestMode(),
		Assets:      len(refs),
	})
	if run.ID != "" {
		ctx = services.WithRunID(ctx, run.ID)
	}
	logger := logging.WithContext(ctx, m.logger)

	observers := []pipeline.Observer{metricsObserver{recorder: recorder}}
	if ledgerStore != nil && run.ID != "" {
		observers = append(observers, ledgerObserver{store: ledgerStore, runID: run.ID, logger: m.logger})
	}
	processor := pipeline.NewProcessor(client, store, m.logger)
	runner := pipeline.NewRunner(runnerCfg, processor, failureLog, m.logger, observers...)

	summary, runErr := runner.Run(ctx, refs, types)
	recorder.SetWorkers(summary.Workers)
	recorder.MarkRunFinished(m.now())

	if ledgerStore != nil && run.ID != "" {
		// The run context may already be cancelled; the final row must still land.
		if err := ledgerStore.FinishRun(context.WithoutCancel(ctx), run.ID, summary.Succeeded(), summary.Failed(), runErr); err != nil {
			logger.Warn("record run completion", logging.Error(err))
		}
	}
	m.writeMetrics(recorder)
	logging.PruneOldFiles(m.logger, m.cfg.Logging.RetentionDays, m.cfg.Paths.LogDir, failureLogPatterns...)

	result := GenerateResult{
		RunID:       run.ID,
		Destination: store.Location(),
		Summary:     summary,
	}
	if failureLog.Len() > 0 {
		result.FailureList, result.FailureDetails = failureLog.Paths()
		logging.WarnWithContext(logger, "some assets failed", "asset_failures",
			logging.Int("failed", summary.Failed()),
			logging.String("failure_list", result.FailureList),
			logging.String(logging.FieldErrorHint, "see "+result.FailureDetails),
			logging.String(logging.FieldImpact, "failed assets are missing from the export"),
		)
	}
	return result, runErr
}

// openDestination opens the result store and, for directory stores, creates
// and locks the folder.
func (m *Manager) openDestination(ctx context.Context, destination string) (results.Store, func(), error) {
	if m.dirBackend() {
		if err := os.MkdirAll(destination, 0o755); err != nil {
			return nil, nil, services.Wrap(services.ErrLocalResource, "generate", "create destination", destination, err)
		}
	}
	store, err := results.Open(ctx, m.cfg.Storage.Backend, m.s3Config(), destination)
	if err != nil {
		return nil, nil, err
	}
	locker, ok := store.(results.Locker)
	if !ok {
		return store, func() {}, nil
	}
	unlock, err := locker.Lock()
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := unlock(); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("release results lock", logging.Error(err))
		}
	}, nil
}

func (m *Manager) startRun(ctx context.Context, store *ledger.Store, run ledger.Run) ledger.Run {
	if store == nil {
		return ledger.Run{}
	}
	started, err := store.StartRun(ctx, run)
	if err != nil {
		m.logger.Warn("record run start", logging.Error(err))
		return ledger.Run{}
	}
	return started
}

func (m *Manager) writeMetrics(recorder *metrics.Recorder) {
	path := m.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		m.logger.Warn("create metrics dir", logging.Error(err))
		return
	}
	if err := recorder.WriteTextfile(path); err != nil {
		m.logger.Warn("write metrics", logging.String("path", path), logging.Error(err))
	}
}
