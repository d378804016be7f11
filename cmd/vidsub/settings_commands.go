package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidsub/internal/settings"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change saved preferences",
	}
	settingsCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			current, err := store.Load()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), renderStatusLine("Settings", statusWarn, err.Error(), false))
			}
			printSettings(cmd, store.Path(), current)
			return nil
		},
	})
	settingsCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Update one preference (srt_enabled, txt_enabled, last_video_dir)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			updated, err := store.Set(args[0], args[1])
			if err != nil {
				return err
			}
			printSettings(cmd, store.Path(), updated)
			return nil
		},
	})
	return settingsCmd
}

func printSettings(cmd *cobra.Command, path string, s settings.Settings) {
	out := cmd.OutOrStdout()
	lastDir := s.LastVideoDir
	if lastDir == "" {
		lastDir = "(none)"
	}
	fmt.Fprintf(out, "Settings file:  %s\n", path)
	fmt.Fprintf(out, "srt_enabled:    %s\n", yesNo(s.SRTEnabled))
	fmt.Fprintf(out, "txt_enabled:    %s\n", yesNo(s.TXTEnabled))
	fmt.Fprintf(out, "last_video_dir: %s\n", lastDir)
}
