package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"audiotagger/internal/failures"
	"audiotagger/internal/logging"
	"audiotagger/internal/services"
)

// RunRequest describes a tag-then-export invocation.
type RunRequest struct {
	Source     string
	ResultsDir string
	ExportDir  string
	Tags       []string
	Parquet    bool
}

// RunResult combines both halves of a run.
type RunResult struct {
	Generate GenerateResult
	Export   ExportResult
	// TemporaryResults is set when the results folder was created for this
	// run and removed after export.
	TemporaryResults bool
}

// Run tags the source and exports the results. Without a results folder a
// fresh tags-<timestamp> folder is used and removed once the export is
// written. Asset failures do not stop the export.
func (m *Manager) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	source := strings.TrimSpace(req.Source)
	if source == "" {
		return RunResult{}, services.Wrap(services.ErrValidation, "run", "", "source path required", nil)
	}

	var result RunResult
	resultsDir := strings.TrimSpace(req.ResultsDir)
	if resultsDir == "" {
		dir, err := m.temporaryResultsDir()
		if err != nil {
			return result, err
		}
		resultsDir = dir
		result.TemporaryResults = true
		if m.dirBackend() {
			defer func() {
				if err := os.RemoveAll(dir); err != nil {
					m.logger.Warn("remove temporary results", logging.String("path", dir), logging.Error(err))
				}
			}()
		}
	}

	generated, err := m.Generate(ctx, GenerateRequest{
		Source:      source,
		Destination: resultsDir,
		Tags:        req.Tags,
		Command:     "run",
	})
	result.Generate = generated
	if err != nil {
		return result, err
	}
	if generated.Summary.Succeeded() == 0 {
		return result, services.Wrap(services.ErrRemote, "run", "", fmt.Sprintf("no asset could be tagged; see %s", generated.FailureDetails), nil)
	}

	exported, err := m.Export(ctx, ExportRequest{
		ResultsDir: generated.Destination,
		ExportDir:  req.ExportDir,
		Tags:       req.Tags,
		Parquet:    req.Parquet,
	})
	result.Export = exported
	return result, err
}

// temporaryResultsDir names a tags-<timestamp> folder in the working
// directory that does not exist yet.
func (m *Manager) temporaryResultsDir() (string, error) {
	name := "tags-" + m.now().Format(failures.Timestamp)
	dir, err := filepath.Abs(name)
	if err != nil {
		return "", fmt.Errorf("resolve results folder: %w", err)
	}
	if !m.dirBackend() {
		return dir, nil
	}
	if _, err := os.Stat(dir); err == nil {
		return "", services.Wrap(services.ErrValidation, "run", "", fmt.Sprintf("results folder %s already exists", dir), nil)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", services.Wrap(services.ErrLocalResource, "run", "stat results folder", dir, err)
	}
	return dir, nil
}
