// Package preflight provides readiness checks for the analysis service,
// result storage and filesystem paths that audiotagger depends on.
//
// The CLI "audiotagger check" command runs RunAll and renders the results.
// Checks never modify state beyond creating the ledger database when it is
// missing; optional features that are not configured are skipped.
package preflight
