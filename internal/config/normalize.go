package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeTools()
	c.normalizeTranscription()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	if value, ok := os.LookupEnv("VIDSUB_API_TOKEN"); ok && strings.TrimSpace(c.Server.Token) == "" {
		c.Server.Token = strings.TrimSpace(value)
	}
	if c.Process.KillTimeoutMs == 0 {
		c.Process.KillTimeoutMs = defaultKillTimeoutMs
	}
	return nil
}

func (c *Config) normalizeTools() {
	if value, ok := os.LookupEnv("VIDSUB_FFMPEG"); ok && strings.TrimSpace(value) != "" {
		c.Tools.Extractor = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("VIDSUB_TRANSCRIBER"); ok && strings.TrimSpace(value) != "" {
		c.Tools.Transcriber = strings.TrimSpace(value)
	}
	c.Tools.Probe = strings.TrimSpace(c.Tools.Probe)
	c.Tools.Extractor = strings.TrimSpace(c.Tools.Extractor)
	if c.Tools.Extractor == "" {
		c.Tools.Extractor = defaultExtractorBinary
	}
	c.Tools.Transcriber = strings.TrimSpace(c.Tools.Transcriber)
	if c.Tools.Transcriber == "" {
		c.Tools.Transcriber = defaultTranscriberBinary
	}
}

func (c *Config) normalizeTranscription() {
	if value, ok := os.LookupEnv("VIDSUB_MODEL"); ok && strings.TrimSpace(value) != "" {
		c.Transcription.Model = strings.TrimSpace(value)
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultModel
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	c.Transcription.Prompt = strings.TrimSpace(c.Transcription.Prompt)
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = os.TempDir()
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SettingsFile) == "" {
		c.Paths.SettingsFile = filepath.Join(c.Paths.StateDir, "settings.toml")
	}
	if c.Paths.SettingsFile, err = expandPath(c.Paths.SettingsFile); err != nil {
		return fmt.Errorf("paths.settings_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
