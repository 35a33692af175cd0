// Package main hosts the audiotagger CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once per invocation, builds the
// logger, and hands requests to the workflow manager: run tags a source and
// exports tags.csv, generate only tags, export only flattens an existing
// results folder. Informational commands list tag types, discovered assets
// and past runs from the ledger.
package main
