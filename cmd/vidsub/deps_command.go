package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidsub/internal/api"
	"vidsub/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check that the external tools and model are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := preflight.CheckSystemDeps(cfg)
			model := preflight.CheckModel(cfg.Transcription.Model)
			if jsonOut {
				return writeJSON(cmd, struct {
					Dependencies []api.DependencyStatus `json:"dependencies"`
					Model        preflight.Result       `json:"model"`
				}{api.FromDependencies(statuses), model})
			}

			rows := make([][]string, 0, len(statuses)+1)
			missing := 0
			for _, s := range statuses {
				detail := s.Detail
				if s.Available {
					detail = s.Command
				} else if !s.Optional {
					missing++
				}
				rows = append(rows, []string{s.Name, yesNo(s.Available), detail})
			}
			rows = append(rows, []string{model.Name, yesNo(model.Passed), model.Detail})
			if !model.Passed {
				missing++
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Dependency", "Available", "Detail"}, rows))
			if missing > 0 {
				return fmt.Errorf("%d required dependency(ies) missing", missing)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	return cmd
}
