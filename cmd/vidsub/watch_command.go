package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vidsub/internal/config"
	"vidsub/internal/logging"
	"vidsub/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		srt, txt        bool
		outputDir       string
		includeExisting bool
		polling         bool
		settle          time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Extract subtitles for every video dropped into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve watch dir: %w", err)
			}

			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			prefs, _ := store.Load()
			if !cmd.Flags().Changed("srt") {
				srt = prefs.SRTEnabled
			}
			if !cmd.Flags().Changed("txt") {
				txt = prefs.TXTEnabled
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
			hist := ctx.openHistory(cfg, logger)
			if hist != nil {
				defer hist.Close()
			}
			ctrl := newController(cfg, logger, hist)
			defer ctrl.Close()

			w, err := watch.New(ctrl, watch.Options{
				Dir:             dir,
				SRT:             srt,
				TXT:             txt,
				OutputDir:       outputDir,
				IncludeExisting: includeExisting,
				ForcePolling:    polling,
				SettleDelay:     settle,
				Logger:          logger,
			})
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (srt=%s txt=%s); press Ctrl+C to stop\n", w.Dir(), yesNo(srt), yesNo(txt))
			return w.Run(signalCtx)
		},
	}

	cmd.Flags().BoolVar(&srt, "srt", true, "Write .srt files (default from settings)")
	cmd.Flags().BoolVar(&txt, "txt", true, "Write .txt files (default from settings)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Write outputs to this directory")
	cmd.Flags().BoolVar(&includeExisting, "existing", false, "Also process videos already in the directory")
	cmd.Flags().BoolVar(&polling, "poll", false, "Scan the directory periodically instead of using fsnotify")
	cmd.Flags().DurationVar(&settle, "settle", 2*time.Second, "How long a file must stay unchanged before it is processed")
	return cmd
}
