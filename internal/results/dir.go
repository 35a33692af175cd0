package results

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"audiotagger/internal/fileutil"
	"audiotagger/internal/services"
)

const lockFileName = ".audiotagger.lock"

// DirStore keeps one <feature_id>.json file per record in a directory.
type DirStore struct {
	dir string
}

// NewDirStore returns a store rooted at dir. Put creates the directory on
// first write.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: filepath.Clean(dir)}
}

// Location returns the backing directory.
func (s *DirStore) Location() string { return s.dir }

// Put writes the record atomically, replacing any record with the same key.
func (s *DirStore) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return services.Wrap(services.ErrLocalResource, "persist", "create results folder", s.dir, err)
	}
	path := filepath.Join(s.dir, SafeKey(rec.FeatureID)+recordExt)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrLocalResource, "persist", "write record", path, err)
	}
	return nil
}

// List loads every *.json record sorted by file name. A missing directory is
// a validation error; an existing directory with no records yields nil.
func (s *DirStore) List(ctx context.Context) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrValidation, "load", "", fmt.Sprintf("results folder %q not found", s.dir), nil)
		}
		return nil, services.Wrap(services.ErrLocalResource, "load", "read results folder", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), recordExt) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, services.Wrap(services.ErrLocalResource, "load", "read record", name, err)
		}
		rec, err := decodeRecord(strings.TrimSuffix(name, filepath.Ext(name)), data)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Lock takes an exclusive advisory lock on the directory so two runs cannot
// write into the same destination. The returned func releases it.
func (s *DirStore) Lock() (func() error, error) {
	lock := flock.New(filepath.Join(s.dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire results lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "persist", "", fmt.Sprintf("results folder %q is in use by another run", s.dir), nil)
	}
	return func() error {
		if err := lock.Unlock(); err != nil {
			return err
		}
		return os.Remove(lock.Path())
	}, nil
}
