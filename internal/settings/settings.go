// Package settings persists the handful of user preferences that survive
// between runs: which sinks are enabled and the last directory a video was
// picked from.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"
)

// Settings is the typed preference record.
type Settings struct {
	SRTEnabled   bool   `toml:"srt_enabled"`
	TXTEnabled   bool   `toml:"txt_enabled"`
	LastVideoDir string `toml:"last_video_dir"`
}

// Default returns the out-of-the-box preferences: both sinks on.
func Default() Settings {
	return Settings{SRTEnabled: true, TXTEnabled: true}
}

// Store reads and writes a settings file.
type Store struct {
	path string
}

// NewStore returns a store bound to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Load merges the file over the defaults. A missing file yields defaults and no
// error. A malformed file also yields defaults, together with the decode error
// so callers can warn about it.
func (s *Store) Load() (Settings, error) {
	current := Default()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return current, nil
		}
		return current, fmt.Errorf("read settings: %w", err)
	}
	decoded := Default()
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&decoded); err != nil {
		return current, fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	return decoded, nil
}

// Save writes the settings atomically under an advisory lock.
func (s *Store) Save(value Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock settings: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := toml.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.toml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// Remember stores the absolute parent directory of videoPath as the last
// used directory and persists the result.
func (s *Store) Remember(videoPath string) (Settings, error) {
	current, err := s.Load()
	if err != nil {
		current = Default()
	}
	if strings.TrimSpace(videoPath) == "" {
		return current, nil
	}
	abs, err := filepath.Abs(videoPath)
	if err != nil {
		return current, fmt.Errorf("resolve video path: %w", err)
	}
	current.LastVideoDir = filepath.Dir(abs)
	return current, s.Save(current)
}

// Set applies a single key=value update. Keys match the TOML field names.
func (s *Store) Set(key, value string) (Settings, error) {
	current, err := s.Load()
	if err != nil {
		current = Default()
	}
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "srt_enabled", "srt":
		b, err := parseBool(value)
		if err != nil {
			return current, err
		}
		current.SRTEnabled = b
	case "txt_enabled", "txt":
		b, err := parseBool(value)
		if err != nil {
			return current, err
		}
		current.TXTEnabled = b
	case "last_video_dir":
		current.LastVideoDir = strings.TrimSpace(value)
	default:
		return current, fmt.Errorf("unknown settings key %q", key)
	}
	return current, s.Save(current)
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", value)
	}
}
