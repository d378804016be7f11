// Package services defines shared utilities consumed by the pipeline stages
// and the outer surfaces (CLI, HTTP API, watcher).
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep validation,
//     busy, cancellation, and external tool failures distinguishable with
//     errors.Is.
//
// Use these helpers when wiring new stage logic so error reporting and log
// shape stay uniform across the pipeline.
package services
