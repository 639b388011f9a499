package soundmatch

import (
	"log/slog"
	"strings"

	"github.com/teslashibe/go-soundmap/pkg/geom"
)

// Default matcher parameters.
const (
	DefaultSight                  = 50   // ±degrees of DoA treated as in view
	DefaultMatchingAngleThreshold = 30.0 // Max degrees between sound ray and object
)

// Config holds matcher parameters.
type Config struct {
	Sight                  int     // DoA half-angle accepted as in view
	MatchingAngleThreshold float64 // Max angular disagreement for a match
	Classes                *ClassMap
	Logger                 *slog.Logger
}

// Option configures a Matcher.
type Option func(*Config)

// WithSight sets the DoA half-angle.
func WithSight(deg int) Option {
	return func(c *Config) { c.Sight = deg }
}

// WithMatchingAngleThreshold sets the angular acceptance threshold.
func WithMatchingAngleThreshold(deg float64) Option {
	return func(c *Config) { c.MatchingAngleThreshold = deg }
}

// WithClasses sets the label -> class table.
func WithClasses(m *ClassMap) Option {
	return func(c *Config) { c.Classes = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the stock matcher configuration.
func DefaultConfig() Config {
	return Config{
		Sight:                  DefaultSight,
		MatchingAngleThreshold: DefaultMatchingAngleThreshold,
		Classes:                DefaultClassMap(),
		Logger:                 slog.Default(),
	}
}

// Matcher classifies audio events against frame detections.
type Matcher struct {
	cfg Config
	log *slog.Logger
}

// NewMatcher creates a matcher with defaults overridden by opts.
func NewMatcher(opts ...Option) *Matcher {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Classes == nil {
		cfg.Classes = DefaultClassMap()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Matcher{cfg: cfg, log: cfg.Logger.With("component", "soundmatch")}
}

// Sight returns the configured DoA half-angle.
func (m *Matcher) Sight() int {
	return m.cfg.Sight
}

// Threshold returns the configured matching angle threshold.
func (m *Matcher) Threshold() float64 {
	return m.cfg.MatchingAngleThreshold
}

// Classify runs the event through tag selection, class mapping, the view
// gate and the class filter. A nil event yields NoNewSound. The first
// applicable rule wins:
//
//	no event                      -> NoNewSound
//	no usable label               -> NoMatchingRule
//	label unmapped                -> NoMatchingRule
//	DoA outside ±sight            -> OutOfView
//	no object of the mapped class -> NoObjectInView
//	otherwise                     -> MatchFound
func (m *Matcher) Classify(ev *AudioEvent, objects []DetectedObject) Outcome {
	if ev == nil {
		return Outcome{Kind: NoNewSound}
	}

	tag, ok := SelectTag(ev.Tags)
	label := strings.TrimSpace(tag.Label)
	if !ok || label == "" {
		m.log.Debug("sound has no usable label", "doa", ev.DoA)
		return Outcome{Kind: NoMatchingRule, Label: label, DoA: ev.DoA}
	}

	m.log.Debug("best sound", "label", label, "score", tag.Score, "doa", ev.DoA)

	class, ok := m.cfg.Classes.Lookup(label)
	if !ok {
		return Outcome{Kind: NoMatchingRule, Label: label, DoA: ev.DoA}
	}

	if !InView(ev.DoA, m.cfg.Sight) {
		m.log.Debug("sound out of view", "label", label, "doa", ev.DoA)
		return Outcome{Kind: OutOfView, Label: label, DoA: ev.DoA, Class: class}
	}

	var candidates []DetectedObject
	for _, obj := range objects {
		if obj.ClassName == class {
			candidates = append(candidates, obj)
		}
	}

	if len(candidates) == 0 {
		m.log.Debug("sound in view, no matching object", "label", label, "class", class)
		return Outcome{Kind: NoObjectInView, Label: label, DoA: ev.DoA, Class: class}
	}

	m.log.Debug("sound matched", "label", label, "class", class, "candidates", len(candidates))
	return Outcome{Kind: MatchFound, Label: label, DoA: ev.DoA, Class: class, Candidates: candidates}
}

// Direction projects an outcome's DoA into a world ray for the given pose.
func (m *Matcher) Direction(doa int, pose HeadPose) geom.Vec3 {
	return Direction(doa, m.cfg.Sight, pose)
}

// Best picks the MatchFound candidate closest to the sound ray.
// It returns false for any other outcome kind, when no candidate has a
// position, or when the closest candidate exceeds the threshold.
func (m *Matcher) Best(o Outcome, pose HeadPose) (Selection, bool) {
	if o.Kind != MatchFound {
		return Selection{Index: -1}, false
	}

	dir := m.Direction(o.DoA, pose)
	sel, ok := FindBest(pose.Position, dir, o.Candidates, m.cfg.MatchingAngleThreshold)
	if !ok && sel.Index >= 0 {
		m.log.Info("best match rejected by angle",
			"label", o.Label,
			"angle", sel.Angle,
			"threshold", m.cfg.MatchingAngleThreshold)
	}
	return sel, ok
}
