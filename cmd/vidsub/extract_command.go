package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vidsub/internal/api"
	"vidsub/internal/config"
	"vidsub/internal/logging"
	"vidsub/internal/pipeline"
	"vidsub/internal/preflight"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var (
		srt, txt   bool
		outputDir  string
		force      bool
		noProgress bool
		verbose    bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "extract <video>",
		Short: "Extract subtitles from a video file",
		Long: "Probe the video duration, extract 16 kHz mono audio, transcribe it and write\n" +
			"<name>.srt and/or <name>.txt next to the video. Ctrl+C stops the run and\n" +
			"removes the temporary audio.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()

			input, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve input: %w", err)
			}
			if abs, absErr := filepath.Abs(input); absErr == nil {
				input = abs
			}

			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			prefs, prefsErr := store.Load()
			if prefsErr != nil {
				fmt.Fprintln(errOut, renderStatusLine("Settings", statusWarn, prefsErr.Error(), isTerminal(errOut)))
			}
			if !cmd.Flags().Changed("srt") {
				srt = prefs.SRTEnabled
			}
			if !cmd.Flags().Changed("txt") {
				txt = prefs.TXTEnabled
			}
			if outputDir != "" {
				if outputDir, err = config.ExpandPath(outputDir); err != nil {
					return fmt.Errorf("resolve output dir: %w", err)
				}
			}
			req := pipeline.Request{Input: input, SRT: srt, TXT: txt, OutputDir: outputDir}
			if err := req.Validate(); err != nil {
				return err
			}

			results := preflight.RunAll(cfg, input)
			failed := preflight.Failed(results)
			if verbose || len(failed) > 0 || hasWarnings(results) {
				renderPreflight(errOut, results, isTerminal(errOut))
			}
			if len(failed) > 0 && !force {
				return fmt.Errorf("preflight failed: %s: %s (use --force to run anyway)", failed[0].Name, failed[0].Detail)
			}

			outputs := []string{filepath.Join(cfg.Paths.LogDir, logging.LogFileName)}
			if verbose {
				outputs = append(outputs, "stderr")
			}
			logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPaths: outputs})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			hist := ctx.openHistory(cfg, logger)
			if hist != nil {
				defer hist.Close()
			}

			observer := newProgressObserver(errOut, !noProgress && !jsonOut && !verbose && isTerminal(errOut))
			ctrl := newController(cfg, logger, hist, observer)
			defer ctrl.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := ctrl.Start(runCtx, req); err != nil {
				return err
			}
			if _, err := store.Remember(input); err != nil {
				logger.Debug("remember video dir failed", logging.Error(err))
			}

			finished := make(chan struct{})
			go func() {
				select {
				case <-runCtx.Done():
					_ = ctrl.Stop()
				case <-finished:
				}
			}()
			res, _ := ctrl.Wait(context.Background())
			close(finished)

			if jsonOut {
				if err := writeJSON(cmd, api.FromResult(res)); err != nil {
					return err
				}
			} else {
				renderResult(out, res, isTerminal(out))
			}

			switch res.Status {
			case pipeline.StatusCompleted:
				return nil
			case pipeline.StatusCancelled:
				return context.Canceled
			default:
				return errRunFailed
			}
		},
	}

	cmd.Flags().BoolVar(&srt, "srt", true, "Write an .srt subtitle file (default from settings)")
	cmd.Flags().BoolVar(&txt, "txt", true, "Write a plain .txt transcript (default from settings)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Write outputs to this directory instead of next to the video")
	cmd.Flags().BoolVar(&force, "force", false, "Run even when preflight checks fail")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print preflight results and logs to stderr")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	return cmd
}

func hasWarnings(results []preflight.Result) bool {
	for _, r := range results {
		if r.Warning {
			return true
		}
	}
	return false
}

func renderResult(w io.Writer, res pipeline.Result, colorize bool) {
	fmt.Fprintln(w, res.Summary())
	for _, file := range res.Outputs {
		if !file.Exists {
			continue
		}
		detail := humanize.IBytes(uint64(file.Size))
		if file.Kind == "srt" {
			detail = fmt.Sprintf("%d cues, %s", file.Cues, detail)
		}
		fmt.Fprintln(w, renderStatusLine(strings.ToUpper(file.Kind), statusOK, detail, colorize))
		for _, issue := range file.Issues {
			fmt.Fprintln(w, renderStatusLine(strings.ToUpper(file.Kind), statusWarn, issue, colorize))
		}
	}
	for _, warning := range res.Warnings {
		// Missing outputs are already listed in the summary.
		if strings.HasSuffix(warning, "file not generated") {
			continue
		}
		fmt.Fprintln(w, renderStatusLine("Warning", statusWarn, warning, colorize))
	}
	if elapsed := res.Elapsed(); elapsed > 0 && res.Status == pipeline.StatusCompleted {
		fmt.Fprintf(w, "Elapsed: %s\n", elapsed.Round(time.Second))
	}
}
