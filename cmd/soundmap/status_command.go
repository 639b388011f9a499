package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-soundmap/internal/httpc"
	"github.com/teslashibe/go-soundmap/pkg/relay"
)

type headsetsResponse struct {
	Headsets []relay.HeadsetInfo `json:"headsets"`
	Count    int                 `json:"count"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var relayURL string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show relay statistics and connected headsets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			base, err := relayBaseURL(relayURL, cfg)
			if err != nil {
				return err
			}

			var stats relay.Stats
			if err := httpc.GetJSON(cmd.Context(), base+"/api/stats", &stats); err != nil {
				return fmt.Errorf("fetch relay stats: %w", err)
			}
			var headsets headsetsResponse
			if err := httpc.GetJSON(cmd.Context(), base+"/api/headsets", &headsets); err != nil {
				return fmt.Errorf("fetch headsets: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Relay:      %s\n", base)
			fmt.Fprintf(out, "Headsets:   %d\n", stats.HeadsetCount)
			fmt.Fprintf(out, "Received:   %d\n", stats.MessagesReceived)
			fmt.Fprintf(out, "Sent:       %d\n", stats.MessagesSent)
			fmt.Fprintf(out, "Detections: %d\n", stats.Detections)
			fmt.Fprintf(out, "Rejected:   %d\n", stats.Rejected)

			if len(headsets.Headsets) == 0 {
				return nil
			}
			now := time.Now()
			rows := make([][]string, 0, len(headsets.Headsets))
			for _, hs := range headsets.Headsets {
				rows = append(rows, []string{
					hs.ID,
					hs.Device,
					hs.Connected.Local().Format(time.DateTime),
					strconv.Itoa(int(now.Sub(hs.LastSeen).Seconds())) + "s ago",
				})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Device", "Connected", "Last Seen"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&relayURL, "url", "", "Relay base URL (default derived from headset.server_url)")
	return cmd
}
