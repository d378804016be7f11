package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"vidsub/internal/api"
	"vidsub/internal/config"
	"vidsub/internal/history"
	"vidsub/internal/logging"
	"vidsub/internal/pipeline"
	"vidsub/internal/settings"
)

// errRunFailed marks a run whose failure was already reported to the user.
var errRunFailed = errors.New("run failed")

type commandContext struct {
	configFlag *string
	serverFlag *string
	tokenFlag  *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, serverFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		serverFlag: serverFlag,
		tokenFlag:  tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) serverAddress(cfg *config.Config) string {
	if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
		return strings.TrimSpace(*c.serverFlag)
	}
	return cfg.Server.Bind
}

func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	token := cfg.Server.Token
	if c.tokenFlag != nil && strings.TrimSpace(*c.tokenFlag) != "" {
		token = strings.TrimSpace(*c.tokenFlag)
	}
	return api.NewClient(c.serverAddress(cfg), token), nil
}

func (c *commandContext) settingsStore() (*settings.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return settings.NewStore(cfg.Paths.SettingsFile), nil
}

// openHistory returns nil when history is disabled. Open failures are logged
// and treated as disabled so a broken database never blocks a run.
func (c *commandContext) openHistory(cfg *config.Config, logger *slog.Logger) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logging.WarnWithContext(logger, "run history unavailable", "history_open_failed",
			logging.String("path", cfg.HistoryPath()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run will not be recorded"),
		)
		return nil
	}
	return store
}

// newController builds a controller for cfg; the history recorder is added
// to observers when store is non-nil.
func newController(cfg *config.Config, logger *slog.Logger, store *history.Store, observers ...pipeline.Observer) *pipeline.Controller {
	opts := pipeline.OptionsFromConfig(cfg)
	opts.Logger = logger
	if store != nil {
		observers = append(observers, &history.Recorder{Store: store, MaxItems: cfg.History.MaxItems, Logger: logger})
	}
	opts.Observer = pipeline.MultiObserver(observers)
	return pipeline.New(opts)
}

// acquireInstanceLock prevents two long-running controllers (serve/watch)
// sharing a state directory.
func acquireInstanceLock(cfg *config.Config) (*flock.Flock, error) {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock %s: %w", cfg.LockPath(), err)
	}
	if !ok {
		return nil, fmt.Errorf("another vidsub serve/watch instance is running (lock %s)", cfg.LockPath())
	}
	return lock, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
