package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"vidsub/internal/api"
	"vidsub/internal/deps"
	"vidsub/internal/logging"
	"vidsub/internal/preflight"
	"vidsub/internal/settings"
	"vidsub/internal/watch"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		bind     string
		watchDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and optionally a directory watcher) in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(bind) == "" {
				bind = ctx.serverAddress(cfg)
			}

			lock, err := acquireInstanceLock(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			hist := ctx.openHistory(cfg, logger)
			if hist != nil {
				defer hist.Close()
			}
			hub := api.NewHub()
			defer hub.Close()

			ctrl := newController(cfg, logger, hist, hub)
			defer ctrl.Close()

			opts := api.Options{
				Controller:   ctrl,
				Settings:     settings.NewStore(cfg.Paths.SettingsFile),
				Dependencies: func() []deps.Status { return preflight.CheckSystemDeps(cfg) },
				Hub:          hub,
				Token:        cfg.Server.Token,
				Logger:       logger,
			}
			if hist != nil {
				opts.History = hist
			}
			server := api.NewServer(bind, api.NewRouter(opts), logger)
			if err := server.Start(signalCtx); err != nil {
				return err
			}
			defer server.Stop()
			fmt.Fprintf(cmd.OutOrStdout(), "vidsub API listening on http://%s\n", server.Addr())

			if strings.TrimSpace(watchDir) != "" {
				prefs, _ := opts.Settings.Load()
				w, err := watch.New(ctrl, watch.Options{
					Dir:    watchDir,
					SRT:    prefs.SRTEnabled,
					TXT:    prefs.TXTEnabled,
					Logger: logger,
				})
				if err != nil {
					return err
				}
				watchDone := make(chan struct{})
				go func() {
					defer close(watchDone)
					_ = w.Run(signalCtx)
				}()
				defer func() { <-watchDone }()
				fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for new videos\n", w.Dir())
			}

			<-signalCtx.Done()
			logger.Info("vidsub server shutting down", logging.String(logging.FieldEventType, "server_stop"))
			return ctrl.Close()
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to server.bind)")
	cmd.Flags().StringVar(&watchDir, "watch", "", "Also watch this directory for new videos")
	return cmd
}
