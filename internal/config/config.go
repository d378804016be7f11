package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Tools names the external executables. Bare names are resolved next to the
// vidsub binary first, then on PATH (see internal/deps).
type Tools struct {
	// Probe runs the diagnostic-only duration probe. Empty means "same as Extractor".
	Probe       string `toml:"probe"`
	Extractor   string `toml:"extractor"`
	Transcriber string `toml:"transcriber"`
}

// Transcription holds the fixed parameters passed to the transcriber.
type Transcription struct {
	Model    string `toml:"model"`
	Language string `toml:"language"`
	Prompt   string `toml:"prompt"`
}

// Paths contains directory and file locations.
type Paths struct {
	TempDir      string `toml:"temp_dir"`
	LogDir       string `toml:"log_dir"`
	StateDir     string `toml:"state_dir"`
	SettingsFile string `toml:"settings_file"`
}

// Process contains process supervision knobs.
type Process struct {
	KillTimeoutMs int `toml:"kill_timeout_ms"`
}

// History controls the SQLite run history.
type History struct {
	Enabled  bool `toml:"enabled"`
	MaxItems int  `toml:"max_items"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Server contains configuration for the HTTP control surface.
type Server struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Config encapsulates all configuration values for vidsub.
//
// Configuration sections by subsystem:
//   - Tools: probe/extractor/transcriber executables
//   - Transcription: model, language hint and bias prompt
//   - Paths: temp, log and state directories
//   - Process: kill timeout for cancelled tools
//   - History: SQLite run history
//   - Logging: log format and level
//   - Server: HTTP API bind address
type Config struct {
	Tools         Tools         `toml:"tools"`
	Transcription Transcription `toml:"transcription"`
	Paths         Paths         `toml:"paths"`
	Process       Process       `toml:"process"`
	History       History       `toml:"history"`
	Logging       Logging       `toml:"logging"`
	Server        Server        `toml:"server"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidsub/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file in the working directory is
// loaded first; variables already present in the environment win.
func Load(path string) (*Config, string, bool, error) {
	_ = godotenv.Load()

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("vidsub.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the log and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ProbeBinary returns the executable used for the duration probe.
func (c *Config) ProbeBinary() string {
	if probe := strings.TrimSpace(c.Tools.Probe); probe != "" {
		return probe
	}
	return c.Tools.Extractor
}

// KillTimeout returns the bounded wait applied after killing a tool.
func (c *Config) KillTimeout() time.Duration {
	return time.Duration(c.Process.KillTimeoutMs) * time.Millisecond
}

// HistoryPath returns the SQLite database path for run history.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the lock file guarding single-instance background modes.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "vidsub.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the config as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
