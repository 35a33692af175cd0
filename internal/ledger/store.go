package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by another schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one invocation of a tagging or export command.
type Run struct {
	ID          string
	Command     string
	Source      string
	Destination string
	TagTypes    []string
	Workers     int
	TestMode    bool
	Status      string
	Assets      int
	Succeeded   int
	Failed      int
	Error       string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Outcome is the ledger row for one asset.
type Outcome struct {
	Source     string
	Handle     string
	Stage      string
	Cause      string
	Succeeded  bool
	RecordedAt time.Time
}

// Store records runs and asset outcomes in SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or connects to the ledger database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset history)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// StartRun inserts a new running row and returns it with its generated id.
func (s *Store) StartRun(ctx context.Context, run Run) (Run, error) {
	run.ID = uuid.NewString()
	run.Status = StatusRunning
	run.StartedAt = s.now().UTC()
	err := s.exec(ctx, `INSERT INTO runs (id, command, source, destination, tag_types, workers, test_mode, status, assets, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.Source, run.Destination, strings.Join(run.TagTypes, ","),
		run.Workers, boolToInt(run.TestMode), run.Status, run.Assets, formatTime(run.StartedAt),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// RecordOutcome appends one asset outcome to a run.
func (s *Store) RecordOutcome(ctx context.Context, runID string, outcome Outcome) error {
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = s.now().UTC()
	}
	err := s.exec(ctx, `INSERT INTO asset_outcomes (run_id, source, handle, stage, cause, succeeded, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, outcome.Source, nullableString(outcome.Handle), nullableString(outcome.Stage),
		nullableString(outcome.Cause), boolToInt(outcome.Succeeded), formatTime(outcome.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// FinishRun stores the final counts. A non-nil runErr marks the run failed.
func (s *Store) FinishRun(ctx context.Context, runID string, succeeded, failed int, runErr error) error {
	status := StatusCompleted
	var message any
	if runErr != nil {
		status = StatusFailed
		message = runErr.Error()
	}
	err := s.exec(ctx, `UPDATE runs SET status = ?, succeeded = ?, failed = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		status, succeeded, failed, message, formatTime(s.now().UTC()), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, command, source, destination, tag_types, workers, test_mode, status,
		assets, succeeded, failed, error_message, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Outcomes returns the outcomes recorded for a run in insertion order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, handle, stage, cause, succeeded, recorded_at
		FROM asset_outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var (
			out                  Outcome
			handle, stage, cause sql.NullString
			succeeded            int
			recorded             string
		)
		if err := rows.Scan(&out.Source, &handle, &stage, &cause, &succeeded, &recorded); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out.Handle, out.Stage, out.Cause = handle.String, stage.String, cause.String
		out.Succeeded = succeeded != 0
		if out.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run      Run
		tagTypes string
		testMode int
		errMsg   sql.NullString
		started  string
		finished sql.NullString
	)
	if err := scanner.Scan(&run.ID, &run.Command, &run.Source, &run.Destination, &tagTypes, &run.Workers,
		&testMode, &run.Status, &run.Assets, &run.Succeeded, &run.Failed, &errMsg, &started, &finished); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if tagTypes != "" {
		run.TagTypes = strings.Split(tagTypes, ",")
	}
	run.TestMode = testMode != 0
	run.Error = errMsg.String
	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if finished.Valid && finished.String != "" {
		t, err := parseTime(finished.String)
		if err != nil {
			return Run{}, err
		}
		run.FinishedAt = &t
	}
	return run, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}
