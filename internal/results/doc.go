// Package results persists per-asset tag records.
//
// Each successfully tagged asset produces one Record keyed by its feature id.
// DirStore writes <feature_id>.json files atomically (temp file + rename) and
// lists them sorted by name; S3Store does the same against a bucket prefix
// through minio-go. Records are never mutated after they are written.
package results
