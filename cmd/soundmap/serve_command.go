package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-soundmap/pkg/protocol"
	"github.com/teslashibe/go-soundmap/pkg/relay"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the detection relay",
		Long: `Run the detection relay.

Headsets connect on /ws or /ws/:id, detection sources on /ws/source.
Detections can also be posted to /api/detections.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			addr := cfg.Server.Bind
			if strings.TrimSpace(bind) != "" {
				addr = strings.TrimSpace(bind)
			}

			logger := ctx.daemonLogger()
			hub := relay.NewHub(logger)
			hub.OnDetection(func(msg *protocol.DetectionMsg) {
				logger.Debug("detection published", "doa", msg.DoA, "tags", len(msg.Tags))
			})
			app := relay.NewApp(hub, relay.AppConfig{
				Version:     version,
				LogRequests: cfg.Server.LogRequests,
			})

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() { errc <- app.Listen(addr) }()
			logger.Info("relay listening", "addr", addr, "version", version)

			select {
			case err := <-errc:
				if err != nil {
					return fmt.Errorf("relay server: %w", err)
				}
				return nil
			case <-runCtx.Done():
			}

			logger.Info("shutting down relay", "headsets", hub.HeadsetCount())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown relay: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides server.bind)")
	return cmd
}
