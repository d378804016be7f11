package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateProcess(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.History.MaxItems < 0 {
		return errors.New("history.max_items must not be negative")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if strings.ContainsAny(c.Transcription.Language, " \t") {
		return fmt.Errorf("transcription.language %q must be a single language code", c.Transcription.Language)
	}
	return nil
}

func (c *Config) validateProcess() error {
	if c.Process.KillTimeoutMs < 0 {
		return errors.New("process.kill_timeout_ms must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	return nil
}
