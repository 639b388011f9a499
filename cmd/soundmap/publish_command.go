package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-soundmap/internal/httpc"
	"github.com/teslashibe/go-soundmap/pkg/protocol"
)

type publishResponse struct {
	Status    string `json:"status"`
	Delivered int    `json:"delivered"`
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var relayURL string
	var doa int
	var tags []string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a detection to every connected headset",
		Example: `  soundmap publish --doa 10 --tag Speech:0.9
  soundmap publish --doa 200 --tag "Vehicle horn:0.8" --tag Car:0.4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			base, err := relayBaseURL(relayURL, cfg)
			if err != nil {
				return err
			}

			items := make([]protocol.TagItem, 0, len(tags))
			for _, value := range tags {
				tag, err := parseTag(value)
				if err != nil {
					return err
				}
				items = append(items, tag)
			}
			msg := protocol.NewDetection(doa, items...)
			if err := msg.Validate(); err != nil {
				return err
			}

			var resp publishResponse
			if err := httpc.PostJSON(cmd.Context(), base+"/api/detections", msg, &resp); err != nil {
				return fmt.Errorf("publish detection: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s at %d° to %d headset(s)\n", items[0].Label, doa, resp.Delivered)
			return nil
		},
	}

	cmd.Flags().StringVar(&relayURL, "url", "", "Relay base URL (default derived from headset.server_url)")
	cmd.Flags().IntVar(&doa, "doa", 0, "Direction of arrival in degrees (0-359)")
	cmd.Flags().StringArrayVarP(&tags, "tag", "t", nil, "Classifier tag as label[:score], highest score first (repeatable)")
	return cmd
}
