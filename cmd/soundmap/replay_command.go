package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-soundmap/pkg/headset"
	"github.com/teslashibe/go-soundmap/pkg/scene"
	"github.com/teslashibe/go-soundmap/pkg/soundmatch"
)

func newReplayCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <scene.toml>",
		Short: "Run a scripted scene and print what each step did",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sc, err := scene.Load(args[0])
			if err != nil {
				return err
			}
			if len(sc.Steps) == 0 {
				return fmt.Errorf("scene %s has no steps", args[0])
			}

			logger := ctx.logger(cmd)
			rows := headset.Replay(cmd.Context(), sc, newMatcher(cfg, logger), placementOptions(cfg, logger)...)

			table := make([][]string, 0, len(rows))
			for _, row := range rows {
				table = append(table, []string{
					strconv.Itoa(row.Step),
					row.Note,
					row.Outcome.Kind.String(),
					row.Outcome.Label,
					formatDoA(row.Outcome),
					formatAngle(row.Angle),
					yesNo(row.Spawned),
					strconv.Itoa(row.Markers),
					formatNotified(row.Notified),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Step", "Note", "Outcome", "Label", "DoA", "Angle", "Spawned", "Markers", "Notified"},
				table,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight, alignLeft},
			))
			return cmd.Context().Err()
		},
	}
	return cmd
}

func formatDoA(o soundmatch.Outcome) string {
	if !o.Acted() {
		return "-"
	}
	return strconv.Itoa(o.DoA)
}
