// Package scene loads static scenes and scripted sound sequences from TOML.
//
// A scene stands in for the headset's camera pipeline: a fixed head pose,
// the objects the detector would report, and optionally a list of steps
// for replay.
//
//	[pose]
//	position = [0.0, 1.6, 0.0]
//	forward  = [0.0, 0.0, 1.0]
//	hfov     = 80.0
//
//	[[objects]]
//	class    = "person"
//	position = [0.3, 1.6, 2.0]
//
//	[[steps]]
//	doa  = 10
//	tags = [{ label = "Speech", score = 0.9 }]
package scene

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/teslashibe/go-soundmap/pkg/geom"
	"github.com/teslashibe/go-soundmap/pkg/soundmatch"
)

// DefaultHorizontalFOV is used when a scene omits hfov.
const DefaultHorizontalFOV = 90.0

var ErrInvalidScene = errors.New("scene: invalid scene")

// Pose is the viewer's head in world space.
type Pose struct {
	Position []float64 `toml:"position"`
	Forward  []float64 `toml:"forward"`
	HFOV     float64   `toml:"hfov"`
}

// Object is a detection. An empty position means the detector saw the
// object but could not place it in the world.
type Object struct {
	Class    string    `toml:"class"`
	Position []float64 `toml:"position,omitempty"`
}

// Tag is one classifier label.
type Tag struct {
	Label string  `toml:"label"`
	Score float64 `toml:"score"`
}

// Step is one scripted frame. A step without tags is an idle frame.
type Step struct {
	DoA      int       `toml:"doa"`
	Tags     []Tag     `toml:"tags,omitempty"`
	Recenter bool      `toml:"recenter,omitempty"`
	Objects  *[]Object `toml:"objects,omitempty"` // Replaces the scene objects from this step on
	Note     string    `toml:"note,omitempty"`
}

// Scene is a parsed scene file.
type Scene struct {
	Pose    Pose     `toml:"pose"`
	Objects []Object `toml:"objects"`
	Steps   []Step   `toml:"steps"`
}

// Load reads and validates a scene file.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene %q: %w", path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scene %q: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates a scene.
func Parse(data []byte) (*Scene, error) {
	var sc Scene
	if err := toml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if sc.Pose.HFOV == 0 {
		sc.Pose.HFOV = DefaultHorizontalFOV
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks vector lengths and ranges.
func (s *Scene) Validate() error {
	if len(s.Pose.Position) != 0 && len(s.Pose.Position) != 3 {
		return fmt.Errorf("%w: pose.position needs 3 components", ErrInvalidScene)
	}
	if len(s.Pose.Forward) != 0 {
		if len(s.Pose.Forward) != 3 {
			return fmt.Errorf("%w: pose.forward needs 3 components", ErrInvalidScene)
		}
		if vec(s.Pose.Forward).Len() == 0 {
			return fmt.Errorf("%w: pose.forward is zero", ErrInvalidScene)
		}
	}
	if s.Pose.HFOV <= 0 || s.Pose.HFOV >= 180 {
		return fmt.Errorf("%w: pose.hfov must be in (0, 180)", ErrInvalidScene)
	}
	if err := validateObjects("objects", s.Objects); err != nil {
		return err
	}
	for i, st := range s.Steps {
		if st.DoA < 0 || st.DoA > 359 {
			return fmt.Errorf("%w: steps[%d].doa %d out of range", ErrInvalidScene, i, st.DoA)
		}
		if st.Objects != nil {
			if err := validateObjects(fmt.Sprintf("steps[%d].objects", i), *st.Objects); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateObjects(field string, objects []Object) error {
	for i, o := range objects {
		if o.Class == "" {
			return fmt.Errorf("%w: %s[%d] has no class", ErrInvalidScene, field, i)
		}
		if len(o.Position) != 0 && len(o.Position) != 3 {
			return fmt.Errorf("%w: %s[%d].position needs 3 components", ErrInvalidScene, field, i)
		}
	}
	return nil
}

// HeadPose returns the scene pose. Missing fields default to the origin
// looking down +Z.
func (s *Scene) HeadPose() soundmatch.HeadPose {
	pose := soundmatch.HeadPose{
		Forward:       geom.Forward,
		HorizontalFOV: s.Pose.HFOV,
	}
	if len(s.Pose.Position) == 3 {
		pose.Position = vec(s.Pose.Position)
	}
	if len(s.Pose.Forward) == 3 {
		pose.Forward = vec(s.Pose.Forward).Normalize()
	}
	return pose
}

// DetectedObjects converts the scene objects.
func (s *Scene) DetectedObjects() []soundmatch.DetectedObject {
	return convert(s.Objects)
}

// Event returns the step's audio event, or false for an idle step.
func (st Step) Event() (soundmatch.AudioEvent, bool) {
	if len(st.Tags) == 0 {
		return soundmatch.AudioEvent{}, false
	}
	tags := make([]soundmatch.Tag, len(st.Tags))
	for i, t := range st.Tags {
		tags[i] = soundmatch.Tag{Label: t.Label, Score: t.Score}
	}
	return soundmatch.AudioEvent{DoA: st.DoA, Tags: tags}, true
}

func convert(objects []Object) []soundmatch.DetectedObject {
	out := make([]soundmatch.DetectedObject, len(objects))
	for i, o := range objects {
		out[i].ClassName = o.Class
		if len(o.Position) == 3 {
			p := vec(o.Position)
			out[i].WorldPos = &p
		}
	}
	return out
}

func vec(v []float64) geom.Vec3 {
	return geom.Vec3{X: v[0], Y: v[1], Z: v[2]}
}
