// Package placement turns classified sounds into markers in the world.
//
// A Controller is driven by one frame loop. Each Tick consumes at most one
// pending audio event, classifies it against the frame's detections, clears
// the previous markers and places at most one new marker.
package placement

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-soundmap/pkg/geom"
	"github.com/teslashibe/go-soundmap/pkg/markers"
	"github.com/teslashibe/go-soundmap/pkg/soundmatch"
)

// DefaultFallbackDistance is how far in front of the viewer a marker is
// placed when the sound is in view but nothing matching was detected.
const DefaultFallbackDistance = 0.5

// ResetCount is passed to marker listeners whenever the set is cleared.
const ResetCount = -1

// EventSource hands out the latest pending audio event, at most once.
type EventSource interface {
	TakeLatest() (soundmatch.AudioEvent, bool)
}

// Raycaster snaps a candidate position onto real geometry.
// ok is false when nothing was hit.
type Raycaster interface {
	TryPlace(pos geom.Vec3) (geom.Vec3, bool)
}

// CuePlayer plays the placement sound.
type CuePlayer interface {
	PlayPlacement()
}

// Frame is the per-tick view of the world.
type Frame struct {
	Objects []soundmatch.DetectedObject
	Pose    soundmatch.HeadPose
}

// Result describes what a Tick did.
type Result struct {
	Outcome   soundmatch.Outcome
	Selection soundmatch.Selection
	Marker    *markers.Marker // Non-nil when a marker was spawned
}

// Spawned reports whether the tick placed a marker.
func (r Result) Spawned() bool {
	return r.Marker != nil
}

// Config holds controller settings.
type Config struct {
	Raycaster        Raycaster
	Cue              CuePlayer
	Kinds            *markers.KindTable
	FallbackDistance float64
	SpawnDistance    float64
	Logger           *slog.Logger
}

// Option configures a Controller.
type Option func(*Config)

// WithRaycaster sets the raycaster. Without one, positions are used as is.
func WithRaycaster(r Raycaster) Option {
	return func(c *Config) { c.Raycaster = r }
}

// WithCuePlayer sets the placement cue.
func WithCuePlayer(p CuePlayer) Option {
	return func(c *Config) { c.Cue = p }
}

// WithKindTable sets the label -> marker kind table.
func WithKindTable(t *markers.KindTable) Option {
	return func(c *Config) { c.Kinds = t }
}

// WithFallbackDistance sets the fallback placement distance in meters.
func WithFallbackDistance(d float64) Option {
	return func(c *Config) { c.FallbackDistance = d }
}

// WithSpawnDistance sets the dedup radius in meters.
func WithSpawnDistance(d float64) Option {
	return func(c *Config) { c.SpawnDistance = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Controller owns the marker set and runs the per-frame placement cycle.
// It is not safe for concurrent use.
type Controller struct {
	cfg       Config
	matcher   *soundmatch.Matcher
	source    EventSource
	set       *markers.Set
	listeners []func(int)
	inst      instruments
	log       *slog.Logger
}

// New creates a controller reading events from source.
func New(matcher *soundmatch.Matcher, source EventSource, opts ...Option) *Controller {
	cfg := Config{
		FallbackDistance: DefaultFallbackDistance,
		SpawnDistance:    markers.DefaultSpawnDistance,
		Logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.FallbackDistance <= 0 {
		cfg.FallbackDistance = DefaultFallbackDistance
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if matcher == nil {
		matcher = soundmatch.NewMatcher(soundmatch.WithLogger(cfg.Logger))
	}

	log := cfg.Logger.With("component", "placement")
	inst, err := newInstruments()
	if err != nil {
		log.Warn("metrics disabled", "error", err)
	}

	return &Controller{
		cfg:     cfg,
		matcher: matcher,
		source:  source,
		set:     markers.NewSet(cfg.SpawnDistance),
		inst:    inst,
		log:     log,
	}
}

// OnMarkersChanged registers a listener for marker count changes.
// Listeners get ResetCount on every clear and the live count after each
// cycle that consumed an event.
func (c *Controller) OnMarkersChanged(fn func(count int)) {
	if fn != nil {
		c.listeners = append(c.listeners, fn)
	}
}

// Tick runs one placement cycle.
func (c *Controller) Tick(ctx context.Context, frame Frame) Result {
	var ev *soundmatch.AudioEvent
	if c.source != nil {
		if e, ok := c.source.TakeLatest(); ok {
			ev = &e
		}
	}

	outcome := c.matcher.Classify(ev, frame.Objects)
	res := Result{Outcome: outcome, Selection: soundmatch.Selection{Index: -1}}
	if !outcome.Acted() {
		return res
	}

	ctx, span := tracer.Start(ctx, "placement cycle", trace.WithAttributes(
		attribute.String("sound.label", outcome.Label),
		attribute.Int("sound.doa", outcome.DoA),
		attribute.String("outcome", outcome.Kind.String()),
	))
	defer span.End()

	c.inst.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome.Kind.String())))

	c.clear()

	switch outcome.Kind {
	case soundmatch.MatchFound:
		sel, ok := c.matcher.Best(outcome, frame.Pose)
		res.Selection = sel
		if !ok {
			span.SetAttributes(attribute.Bool("match.accepted", false))
			break
		}
		span.SetAttributes(
			attribute.Bool("match.accepted", true),
			attribute.Float64("match.angle", sel.Angle),
		)

		pos := *sel.Object.WorldPos
		if c.cfg.Raycaster != nil {
			hit, ok := c.cfg.Raycaster.TryPlace(pos)
			if !ok {
				c.log.Debug("raycast missed, no marker", "label", outcome.Label)
				span.SetStatus(codes.Error, "raycast missed")
				break
			}
			pos = hit
		}
		res.Marker = c.spawn(ctx, outcome.Label, pos)

	case soundmatch.NoObjectInView:
		dir := c.matcher.Direction(outcome.DoA, frame.Pose)
		pos := frame.Pose.Position.Add(dir.Scale(c.cfg.FallbackDistance))
		res.Marker = c.spawn(ctx, outcome.Label, pos)
	}

	span.SetAttributes(attribute.Bool("marker.spawned", res.Marker != nil))

	c.log.Info("sound handled",
		"outcome", outcome.Kind.String(),
		"label", outcome.Label,
		"doa", outcome.DoA,
		"spawned", res.Marker != nil)

	c.notify(c.set.Len())
	return res
}

// Recenter clears every marker. Call it when the tracking origin moves.
func (c *Controller) Recenter() {
	c.log.Info("recentered, clearing markers", "count", c.set.Len())
	c.clear()
}

// Markers returns a snapshot of the live markers.
func (c *Controller) Markers() []markers.Marker {
	return c.set.All()
}

// Count returns the number of live markers.
func (c *Controller) Count() int {
	return c.set.Len()
}

func (c *Controller) spawn(ctx context.Context, label string, pos geom.Vec3) *markers.Marker {
	kind := c.cfg.Kinds.Resolve(label)
	m, ok := c.set.Place(kind, label, pos)
	if !ok {
		c.log.Debug("marker suppressed, duplicate nearby", "label", label)
		return nil
	}

	if c.cfg.Cue != nil {
		c.cfg.Cue.PlayPlacement()
	}
	c.inst.spawned.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
	c.log.Debug("marker placed", "id", m.ID, "label", label, "kind", kind.String(), "position", m.Position)
	return &m
}

func (c *Controller) clear() {
	c.set.Clear()
	c.notify(ResetCount)
}

func (c *Controller) notify(count int) {
	for _, fn := range c.listeners {
		fn(count)
	}
}
