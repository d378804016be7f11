package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vidsub/internal/pipeline"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrNotFound is returned by Get for unknown run ids.
var ErrNotFound = errors.New("run not found")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Entry is one finished run.
type Entry struct {
	ID         int64
	RunID      string
	Input      string
	Status     pipeline.Status
	SRTEnabled bool
	TXTEnabled bool
	SRTPath    string
	TXTPath    string
	SRTExists  bool
	TXTExists  bool
	CueCount   int
	DurationMs int64
	Error      string
	Warnings   []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Elapsed returns the wall time of the run.
func (e Entry) Elapsed() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// FromResult converts a pipeline result into a history entry.
func FromResult(res pipeline.Result) Entry {
	entry := Entry{
		RunID:      res.RunID,
		Input:      res.Request.Input,
		Status:     res.Status,
		SRTEnabled: res.Request.SRT,
		TXTEnabled: res.Request.TXT,
		DurationMs: res.Progress.TotalMs,
		Error:      res.ErrorMessage(),
		Warnings:   append([]string(nil), res.Warnings...),
		StartedAt:  res.Started,
		FinishedAt: res.Finished,
	}
	for _, out := range res.Outputs {
		switch out.Kind {
		case "srt":
			entry.SRTPath, entry.SRTExists, entry.CueCount = out.Path, out.Exists, out.Cues
		case "txt":
			entry.TXTPath, entry.TXTExists = out.Path, out.Exists
		}
	}
	return entry
}

// Store persists finished runs in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Record inserts a finished run. Recording the same run id twice updates it.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.RunID) == "" {
		return errors.New("history: run id is required")
	}
	const query = `INSERT INTO runs (
		run_id, input_path, status, srt_enabled, txt_enabled, srt_path, txt_path,
		srt_exists, txt_exists, cue_count, duration_ms, error_message, warnings,
		started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		status = excluded.status,
		srt_exists = excluded.srt_exists,
		txt_exists = excluded.txt_exists,
		cue_count = excluded.cue_count,
		error_message = excluded.error_message,
		warnings = excluded.warnings,
		finished_at = excluded.finished_at`
	return s.execWithoutResultRetry(ctx, query,
		e.RunID, e.Input, string(e.Status), boolInt(e.SRTEnabled), boolInt(e.TXTEnabled),
		e.SRTPath, e.TXTPath, boolInt(e.SRTExists), boolInt(e.TXTExists), e.CueCount,
		e.DurationMs, e.Error, strings.Join(e.Warnings, "\n"),
		formatTime(e.StartedAt), formatTime(e.FinishedAt),
	)
}

const selectColumns = `id, run_id, input_path, status, srt_enabled, txt_enabled, srt_path, txt_path,
	srt_exists, txt_exists, cue_count, duration_ms, error_message, warnings, started_at, finished_at`

// List returns the most recent runs first. limit <= 0 returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := "SELECT " + selectColumns + " FROM runs ORDER BY finished_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Get returns a single run by id.
func (s *Store) Get(ctx context.Context, runID string) (Entry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+selectColumns+" FROM runs WHERE run_id = ?", runID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return entry, err
}

// Prune keeps the newest keep runs and deletes the rest, returning the number removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.execWithRetry(ctx,
		`DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY finished_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                                   Entry
		status, warnings, started, finished string
		srtEnabled, txtEnabled              int
		srtExists, txtExists                int
	)
	if err := row.Scan(&e.ID, &e.RunID, &e.Input, &status, &srtEnabled, &txtEnabled,
		&e.SRTPath, &e.TXTPath, &srtExists, &txtExists, &e.CueCount, &e.DurationMs,
		&e.Error, &warnings, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan run: %w", err)
	}
	e.Status = pipeline.Status(status)
	e.SRTEnabled, e.TXTEnabled = srtEnabled != 0, txtEnabled != 0
	e.SRTExists, e.TXTExists = srtExists != 0, txtExists != 0
	if warnings != "" {
		e.Warnings = strings.Split(warnings, "\n")
	}
	e.StartedAt = parseTime(started)
	e.FinishedAt = parseTime(finished)
	return e, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset history)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	_, err := s.execWithRetry(ctx, query, args...)
	return err
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
