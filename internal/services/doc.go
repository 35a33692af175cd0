// Package services defines shared utilities consumed by the tagging pipeline
// and its remote integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, asset identifiers, stage names, and
//     worker slots for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into local-resource, remote, validation, and configuration errors.
//   - Exit code mapping so validation and configuration failures surface
//     differently from partial batch failures.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform.
package services
