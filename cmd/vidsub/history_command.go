package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vidsub/internal/api"
	"vidsub/internal/history"
	"vidsub/internal/timecode"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		jsonOut bool
		prune   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent extraction runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("prune") {
				removed, err := store.Prune(cmd.Context(), prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d run(s)\n", removed)
				return nil
			}

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				runs := make([]api.HistoryRun, 0, len(entries))
				for _, e := range entries {
					runs = append(runs, api.FromHistory(e))
				}
				return writeJSON(cmd, api.HistoryResponse{Runs: runs})
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderHistoryTable(entries, time.Now()))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print runs as JSON")
	cmd.Flags().IntVar(&prune, "prune", 0, "Delete all but the newest N runs")
	return cmd
}

func renderHistoryTable(entries []history.Entry, now time.Time) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		outputs := ""
		if e.SRTExists {
			outputs += "srt "
		}
		if e.TXTExists {
			outputs += "txt"
		}
		duration := "-"
		if e.DurationMs > 0 {
			duration = timecode.FormatDuration(e.DurationMs)
		}
		rows = append(rows, []string{
			humanize.RelTime(e.FinishedAt, now, "ago", "from now"),
			filepath.Base(e.Input),
			e.Status.Label(),
			duration,
			strconv.Itoa(e.CueCount),
			outputs,
			e.Elapsed().Round(time.Second).String(),
		})
	}
	return renderTable([]string{"Finished", "Video", "Status", "Duration", "Cues", "Outputs", "Took"}, rows, 3, 4, 6)
}
