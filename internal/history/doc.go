// Package history keeps a SQLite record of finished extraction runs so the
// CLI and the HTTP API can list what was produced, when and why a run failed.
package history
