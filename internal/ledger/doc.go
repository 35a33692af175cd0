// Package ledger keeps a SQLite history of tagging runs.
//
// Every run and export invocation inserts a row into runs; the pipeline adds
// one asset_outcomes row per asset as it finishes. The history command reads
// it back. The schema is embedded and versioned; a mismatched database must
// be deleted rather than migrated.
package ledger
