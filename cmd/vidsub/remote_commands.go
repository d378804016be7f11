package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"vidsub/internal/api"
	"vidsub/internal/pipeline"
	"vidsub/internal/services"
)

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the run in progress on a running `vidsub serve`",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := client.Stop(cmd.Context())
			if errors.Is(err, services.ErrNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "No run in progress")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped. Controller is %s\n", status.Label)
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running `vidsub serve`",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			renderRemoteStatus(out, status, isTerminal(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the status as JSON")
	return cmd
}

func renderRemoteStatus(w io.Writer, status api.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("vidsub", colorize) {
		fmt.Fprintln(w, line)
	}
	kind := statusInfo
	switch pipeline.Status(status.Status) {
	case pipeline.StatusCompleted:
		kind = statusOK
	case pipeline.StatusFailed:
		kind = statusError
	case pipeline.StatusCancelled:
		kind = statusWarn
	}
	fmt.Fprintln(w, renderStatusLine("State", kind, status.Label, colorize))
	if status.Input != "" {
		fmt.Fprintln(w, renderStatusLine("Input", statusInfo, status.Input, colorize))
	}
	if status.Active {
		fmt.Fprintln(w, renderStatusLine("Progress", statusInfo, fmt.Sprintf("%d%% %s", status.Progress.Percent, status.Message), colorize))
	}
	if last := status.Last; last != nil && !status.Active {
		fmt.Fprintln(w, renderStatusLine("Last run", kind, last.Summary, colorize))
	}
}
