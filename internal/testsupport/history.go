package testsupport

import (
	"path/filepath"
	"testing"

	"vidsub/internal/config"
	"vidsub/internal/history"
)

// MustOpenHistory opens the history database configured for cfg and closes it
// at test cleanup. A nil cfg uses a fresh temp directory.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	if cfg != nil {
		path = cfg.HistoryPath()
	}
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
