package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"audiotagger/internal/fileutil"
	"audiotagger/internal/flatten"
)

const parquetParallelism = 4

// WriteParquet writes table to <dir>/tags.parquet with one optional UTF8
// column per table column and returns the file path. Column names are the
// header labels in snake case; score columns take the preceding field name
// plus "_score", and repeats gain a numeric suffix.
func WriteParquet(dir string, table flatten.Table) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	columns := ParquetColumns(table.Header)
	schema, err := parquetSchema(columns)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, ParquetFileName)
	err = fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		pfw := writerfile.NewWriterFile(w)
		pw, err := writer.NewJSONWriter(schema, pfw, parquetParallelism)
		if err != nil {
			return fmt.Errorf("parquet writer: %w", err)
		}
		pw.CompressionType = parquet.CompressionCodec_SNAPPY

		for i, row := range table.Rows {
			encoded, err := parquetRow(columns, row)
			if err != nil {
				_ = pw.WriteStop()
				return fmt.Errorf("encode row %d: %w", i, err)
			}
			if err := pw.Write(encoded); err != nil {
				_ = pw.WriteStop()
				return fmt.Errorf("write row %d: %w", i, err)
			}
		}
		if err := pw.WriteStop(); err != nil {
			return fmt.Errorf("finish parquet: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// ParquetColumns derives unique column names from a table header.
func ParquetColumns(header []string) []string {
	columns := make([]string, len(header))
	used := make(map[string]int, len(header))
	previous := ""
	for i, label := range header {
		base := snake(label)
		if label == flatten.ColumnScore && previous != "" {
			base = previous + "_score"
		} else {
			previous = base
		}
		name := base
		if n := used[base]; n > 0 {
			name = base + "_" + strconv.Itoa(n+1)
		}
		used[base]++
		columns[i] = name
	}
	return columns
}

func snake(label string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(label) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	out := strings.TrimSuffix(b.String(), "_")
	if out == "" {
		return "column"
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "c_" + out
	}
	return out
}

func parquetSchema(columns []string) (string, error) {
	fields := make([]map[string]string, 0, len(columns))
	for _, name := range columns {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", name),
		})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("parquet schema: %w", err)
	}
	return string(b), nil
}

// parquetRow renders a row as the JSON object the writer expects. Empty
// cells become nulls.
func parquetRow(columns, row []string) (string, error) {
	values := make(map[string]any, len(columns))
	for i, name := range columns {
		var value any
		if i < len(row) && row[i] != "" {
			value = row[i]
		}
		values[name] = value
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
