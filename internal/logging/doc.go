// Package logging assembles structured slog loggers and formatting helpers used
// across vidsub.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so stage code automatically tags log lines
// with run IDs and stage names. The package also provides a no-op logger for
// tests and wiring code that cannot fail, plus a progress sampler that keeps
// per-chunk tool progress from flooding the log.
package logging
