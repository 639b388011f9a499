package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-soundmap/internal/config"
	"github.com/teslashibe/go-soundmap/pkg/cue"
	"github.com/teslashibe/go-soundmap/pkg/dashboard"
	"github.com/teslashibe/go-soundmap/pkg/headset"
	"github.com/teslashibe/go-soundmap/pkg/ingest"
	"github.com/teslashibe/go-soundmap/pkg/placement"
	"github.com/teslashibe/go-soundmap/pkg/scene"
)

var errRelayLost = errors.New("connection to relay lost")

// logCue stands in for the placement sound on hosts without audio output.
type logCue struct {
	log *slog.Logger
}

func (c logCue) PlayPlacement() {
	c.log.Debug("placement cue")
}

// newCuePlayer returns the configured cue, or nil for "none". An aplay
// player runs until ctx is done.
func newCuePlayer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (placement.CuePlayer, error) {
	switch cfg.Headset.Cue {
	case config.CueNone:
		return nil, nil
	case config.CueAplay:
		sink, err := cue.NewSink(cue.BackendAplay, cfg.Headset.CueDevice)
		if err != nil {
			return nil, err
		}
		player := cue.NewPlayer(sink, cue.WithLogger(logger))
		go func() {
			defer sink.Close()
			player.Run(ctx)
		}()
		return player, nil
	default:
		return logCue{log: logger}, nil
	}
}

func newHeadsetCommand(ctx *commandContext) *cobra.Command {
	var scenePath string
	var serverURL string
	var device string
	var dashboardBind string

	cmd := &cobra.Command{
		Use:   "headset",
		Short: "Connect to the relay and place markers for incoming sounds",
		Long: `Connect to the relay and place markers for incoming sounds.

The scene file provides the head pose and detected objects. Send SIGUSR1
to clear all markers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sc, err := scene.Load(scenePath)
			if err != nil {
				return err
			}

			relayURL := cfg.Headset.ServerURL
			if strings.TrimSpace(serverURL) != "" {
				relayURL = strings.TrimSpace(serverURL)
			}
			name := cfg.Headset.Device
			if strings.TrimSpace(device) != "" {
				name = strings.TrimSpace(device)
			}

			logger := ctx.daemonLogger()
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := ingest.NewClient(relayURL,
				ingest.WithDevice(name),
				ingest.WithHeartbeatInterval(cfg.Headset.HeartbeatInterval()),
				ingest.WithHandshakeTimeout(cfg.Headset.HandshakeTimeout()),
				ingest.WithLogger(logger))
			if err := client.Start(runCtx); err != nil {
				return fmt.Errorf("connect to relay: %w", err)
			}
			defer client.Close()

			player, err := newCuePlayer(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			opts := placementOptions(cfg, logger)
			if player != nil {
				opts = append(opts, placement.WithCuePlayer(player))
			}
			ctrl := placement.New(newMatcher(cfg, logger), client, opts...)
			ctrl.OnMarkersChanged(func(n int) {
				if n == placement.ResetCount {
					logger.Debug("markers cleared")
					return
				}
				logger.Info("markers changed", "count", n)
			})

			dashAddr := cfg.Headset.DashboardBind
			if cmd.Flags().Changed("dashboard") {
				dashAddr = strings.TrimSpace(dashboardBind)
			}

			static := scene.NewStatic(sc)
			runner := headset.NewRunner(ctrl, static, static,
				headset.WithFrameInterval(cfg.Headset.FrameInterval()),
				headset.WithLogger(logger))

			if dashAddr != "" {
				dash := dashboard.New(
					dashboard.WithLogger(logger),
					dashboard.WithStats(func() any {
						return fiber.Map{"runner": runner.Stats(), "ingest": client.Stats()}
					}))
				// Listeners run on the frame loop; Markers returns a copy.
				ctrl.OnMarkersChanged(func(int) { dash.Update(ctrl.Markers()) })
				go func() {
					if err := dash.ListenAndServe(runCtx, dashAddr); err != nil {
						logger.Error("dashboard stopped", "error", err)
					}
				}()
			}

			stopRecenter := notifyRecenter(runner.Recenter)
			defer stopRecenter()

			errc := make(chan error, 1)
			go func() { errc <- runner.Run(runCtx) }()

			select {
			case <-client.Done():
				lost := runCtx.Err() == nil
				stop()
				<-errc
				if lost {
					return errRelayLost
				}
			case <-runCtx.Done():
				<-errc
			}

			stats := runner.Stats()
			ingestStats := client.Stats()
			logger.Info("headset stopped",
				"handled", stats.Handled,
				"spawned", stats.Spawned,
				"recenters", stats.Recenters,
				"received", ingestStats.Received,
				"overwritten", ingestStats.Overwritten)
			return nil
		},
	}

	cmd.Flags().StringVarP(&scenePath, "scene", "s", "", "Scene file with the head pose and detected objects")
	cmd.Flags().StringVar(&serverURL, "server", "", "Relay WebSocket URL (overrides headset.server_url)")
	cmd.Flags().StringVar(&device, "device", "", "Device name sent in hello")
	cmd.Flags().StringVar(&dashboardBind, "dashboard", "", "Serve the marker dashboard on this address (overrides headset.dashboard_bind)")
	_ = cmd.MarkFlagRequired("scene")
	return cmd
}
