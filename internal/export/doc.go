// Package export writes flattened tag tables to disk as tags.csv and,
// optionally, tags.parquet. Both files are replaced atomically.
package export
