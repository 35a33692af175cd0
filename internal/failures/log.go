package failures

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Stage names the call that failed.
type Stage string

const (
	StageUpload  Stage = "upload"
	StageExtract Stage = "extract"
)

// Label is the prefix written in the details log.
func (s Stage) Label() string {
	switch s {
	case StageUpload:
		return "Upload failure"
	case StageExtract:
		return "Tagging failure"
	default:
		return string(s) + " failure"
	}
}

// Record describes one asset that did not produce a result. Handle is empty
// for upload failures.
type Record struct {
	Source string
	Handle string
	Stage  Stage
	Cause  string
}

// Timestamp is the layout used in failure log file names.
const Timestamp = "20060102-150405"

// Log appends failure records to FAILED-<ts>.csv (identifiers only) and
// FAILED_DETAILS-<ts>.csv (identifier, handle, cause). The files are created
// on the first append, so a clean run leaves nothing behind. Safe for
// concurrent use.
type Log struct {
	mu      sync.Mutex
	dir     string
	list    string
	details string
	records []Record

	listFile    *os.File
	detailsFile *os.File
}

// NewLog prepares a log in dir named after started.
func NewLog(dir string, started time.Time) *Log {
	stamp := started.Format(Timestamp)
	return &Log{
		dir:     dir,
		list:    filepath.Join(dir, "FAILED-"+stamp+".csv"),
		details: filepath.Join(dir, "FAILED_DETAILS-"+stamp+".csv"),
	}
}

// Append records rec in memory and on disk. The in-memory record is kept
// even when the files cannot be written.
func (l *Log) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, rec)
	if err := l.openLocked(); err != nil {
		return err
	}
	if err := writeRow(l.listFile, []string{rec.Source}); err != nil {
		return fmt.Errorf("append failure list: %w", err)
	}
	detail := []string{rec.Source, rec.Handle, rec.Stage.Label() + ": " + rec.Cause}
	if err := writeRow(l.detailsFile, detail); err != nil {
		return fmt.Errorf("append failure details: %w", err)
	}
	return nil
}

func (l *Log) openLocked() error {
	if l.listFile != nil && l.detailsFile != nil {
		return nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create failure log dir: %w", err)
	}
	var err error
	if l.listFile == nil {
		if l.listFile, err = openAppend(l.list); err != nil {
			return err
		}
	}
	if l.detailsFile == nil {
		if l.detailsFile, err = openAppend(l.details); err != nil {
			return err
		}
	}
	return nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open failure log: %w", err)
	}
	return f, nil
}

func writeRow(f *os.File, row []string) error {
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Records returns a copy of every record appended so far.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len reports the number of appended records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Paths returns the list and details file paths, whether or not they exist.
func (l *Log) Paths() (list, details string) {
	return l.list, l.details
}

// Close releases the underlying files.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, f := range []*os.File{l.listFile, l.detailsFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.listFile, l.detailsFile = nil, nil
	return firstErr
}
