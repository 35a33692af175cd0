package asset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"audiotagger/internal/services"
)

var audioExtensions = map[string]struct{}{
	".mp3": {},
	".wav": {},
	".m4a": {},
}

// Discover enumerates assets from a directory (recursively, audio files only)
// or from a CSV whose first column lists paths or links.
func Discover(source string) ([]Reference, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, services.Wrap(services.ErrValidation, "discover", "", "source path is required", nil)
	}
	info, err := os.Stat(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrValidation, "discover", "stat", fmt.Sprintf("cannot find the path specified: %s", source), nil)
		}
		return nil, services.Wrap(services.ErrValidation, "discover", "stat", source, err)
	}
	if info.IsDir() {
		return ListDirectory(source)
	}
	return LoadList(source)
}

// ListDirectory walks root and returns a local reference for every audio file.
func ListDirectory(root string) ([]Reference, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "discover", "resolve", root, err)
	}
	var refs []Reference
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := audioExtensions[strings.ToLower(filepath.Ext(d.Name()))]; ok {
			refs = append(refs, LocalFile(path))
		}
		return nil
	})
	if walkErr != nil {
		return nil, services.Wrap(services.ErrValidation, "discover", "walk", absRoot, walkErr)
	}
	if len(refs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "discover", "", "no '.mp3', '.wav', or '.m4a' files found in the provided source folder", nil)
	}
	return refs, nil
}

// LoadList reads a CSV file and classifies the first column of every
// non-empty row.
func LoadList(path string) ([]Reference, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return nil, services.Wrap(services.ErrValidation, "discover", "", fmt.Sprintf("incorrect file type for %s: expected .csv", path), nil)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "discover", "open", path, err)
	}
	defer file.Close()
	refs, err := readList(file)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "discover", "parse", path, err)
	}
	if len(refs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "discover", "", fmt.Sprintf("no entries found in %s", path), nil)
	}
	return refs, nil
}

func readList(r io.Reader) ([]Reference, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var refs []Reference
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 0 {
			continue
		}
		entry := strings.TrimSpace(strings.TrimPrefix(record[0], "\ufeff"))
		if entry == "" {
			continue
		}
		refs = append(refs, Classify(entry))
	}
	return refs, nil
}
