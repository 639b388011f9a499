// Package headset drives the placement controller from a frame clock.
package headset

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-soundmap/pkg/placement"
	"github.com/teslashibe/go-soundmap/pkg/soundmatch"
)

// DefaultFrameInterval is roughly one display frame at 72 Hz.
const DefaultFrameInterval = 14 * time.Millisecond

// Detector reports the objects visible in the current camera frame.
type Detector interface {
	Objects() []soundmatch.DetectedObject
	// Ready reports whether the camera and detector have started.
	Ready() bool
}

// PoseProvider reports the viewer's head pose.
type PoseProvider interface {
	Pose() soundmatch.HeadPose
}

// Config holds runner settings.
type Config struct {
	FrameInterval time.Duration
	Logger        *slog.Logger
}

// Option configures a Runner.
type Option func(*Config)

// WithFrameInterval sets the tick period.
func WithFrameInterval(d time.Duration) Option {
	return func(c *Config) { c.FrameInterval = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Stats counts runner activity.
type Stats struct {
	Ticks     uint64 `json:"ticks"`
	Handled   uint64 `json:"handled"`
	Spawned   uint64 `json:"spawned"`
	Recenters uint64 `json:"recenters"`
}

// Runner ticks a controller on a fixed interval. All controller calls
// happen on the Run goroutine; Recenter may be called from anywhere.
type Runner struct {
	cfg      Config
	ctrl     *placement.Controller
	detector Detector
	pose     PoseProvider
	recenter chan struct{}
	log      *slog.Logger

	ticks     atomic.Uint64
	handled   atomic.Uint64
	spawned   atomic.Uint64
	recenters atomic.Uint64
}

// NewRunner creates a runner.
func NewRunner(ctrl *placement.Controller, detector Detector, pose PoseProvider, opts ...Option) *Runner {
	cfg := Config{
		FrameInterval: DefaultFrameInterval,
		Logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Runner{
		cfg:      cfg,
		ctrl:     ctrl,
		detector: detector,
		pose:     pose,
		recenter: make(chan struct{}, 1),
		log:      cfg.Logger.With("component", "headset"),
	}
}

// Recenter asks the loop to clear all markers on its next iteration.
// Repeated calls before then collapse into one.
func (r *Runner) Recenter() {
	select {
	case r.recenter <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of the counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Ticks:     r.ticks.Load(),
		Handled:   r.handled.Load(),
		Spawned:   r.spawned.Load(),
		Recenters: r.recenters.Load(),
	}
}

// Run blocks until ctx is cancelled. Ticks are skipped until the detector
// is ready.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.FrameInterval)
	defer ticker.Stop()

	ready := false
	r.log.Info("headset loop started", "interval", r.cfg.FrameInterval)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("headset loop stopped", "ticks", r.ticks.Load())
			return ctx.Err()

		case <-r.recenter:
			r.recenters.Add(1)
			r.ctrl.Recenter()

		case <-ticker.C:
			if !ready {
				if !r.detector.Ready() {
					continue
				}
				ready = true
				r.log.Info("detector ready, placement enabled")
			}
			r.step(ctx)
		}
	}
}

func (r *Runner) step(ctx context.Context) {
	r.ticks.Add(1)

	res := r.ctrl.Tick(ctx, placement.Frame{
		Objects: r.detector.Objects(),
		Pose:    r.pose.Pose(),
	})
	if !res.Outcome.Acted() {
		return
	}

	r.handled.Add(1)
	if res.Spawned() {
		r.spawned.Add(1)
	}
}
