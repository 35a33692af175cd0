package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"audiotagger/internal/fileutil"
	"audiotagger/internal/flatten"
)

// File names written into the export directory.
const (
	CSVFileName     = "tags.csv"
	ParquetFileName = "tags.parquet"
)

// WriteCSV writes table to <dir>/tags.csv, creating dir when needed, and
// returns the file path.
func WriteCSV(dir string, table flatten.Table) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, CSVFileName)
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(table.Header); err != nil {
			return err
		}
		if err := cw.WriteAll(table.Rows); err != nil {
			return err
		}
		return cw.Error()
	})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
