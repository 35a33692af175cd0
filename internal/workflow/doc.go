// Package workflow wires configuration into the tagging and export
// operations behind the CLI.
//
// The Manager builds the analysis client (base URL from the API mode, pacing
// in test mode, metrics observer), opens the result store for the requested
// destination and locks it, prepares the failure log, and records each run
// and per-asset outcome in the SQLite ledger. Generate tags a source, Export
// flattens a results folder into tags.csv (and tags.parquet), and Run chains
// the two, using a temporary results folder when none is given.
//
// The ledger and metrics textfile are supplementary: failures to write them
// are logged and never fail the run.
package workflow
