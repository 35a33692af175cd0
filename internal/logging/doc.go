// Package logging assembles the slog loggers used by audiotagger.
//
// The CLI logs human-readable lines to stdout (colored when stdout is a
// terminal) and, when a log directory is configured, mirrors every record as
// JSON into audiotagger.log. Context helpers attach run_id, asset, stage, and
// worker fields set through internal/services. NewNop is for tests and
// wiring code that has no logger.
package logging
