// Package soundmatch decides which detected object, if any, produced a sound.
//
// It combines a classified audio event (direction of arrival plus scored
// tags) with the current frame's object detections and the viewer's head
// pose. Every function here is pure: the same inputs always classify the
// same way, which keeps the frame loop deterministic under test.
package soundmatch

import (
	"fmt"

	"github.com/teslashibe/go-soundmap/pkg/geom"
)

// Tag is one scored sound class from the audio classifier.
type Tag struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// AudioEvent is a single DoA-tagged classification result.
type AudioEvent struct {
	DoA       int    `json:"doa"`       // Degrees, 0-359, 0 = straight ahead
	Tags      []Tag  `json:"tags"`      // Scored classes, may be empty
	Timestamp string `json:"timestamp"` // Producer clock, informational only
}

// DetectedObject is one vision detection in the current frame.
type DetectedObject struct {
	ClassName string
	WorldPos  *geom.Vec3 // nil when depth lookup failed for this box
}

// HasPosition reports whether the detection was placed in world space.
func (o DetectedObject) HasPosition() bool {
	return o.WorldPos != nil
}

// HeadPose is the viewer's head at the time of the frame.
type HeadPose struct {
	Position      geom.Vec3
	Forward       geom.Vec3
	HorizontalFOV float64 // Physical camera horizontal field of view, degrees
}

// OutcomeKind classifies what an audio event means for the current frame.
type OutcomeKind int

const (
	// NoNewSound means no audio event arrived since the last check.
	NoNewSound OutcomeKind = iota
	// NoMatchingRule means the event's label has no class mapping.
	NoMatchingRule
	// OutOfView means the DoA falls outside the viewing cone.
	OutOfView
	// NoObjectInView means the DoA is in view but no object of the mapped class exists.
	NoObjectInView
	// MatchFound means the DoA is in view and at least one class-matching object exists.
	MatchFound
)

var outcomeNames = [...]string{
	NoNewSound:     "no_new_sound",
	NoMatchingRule: "no_matching_rule",
	OutOfView:      "out_of_view",
	NoObjectInView: "no_object_in_view",
	MatchFound:     "match_found",
}

func (k OutcomeKind) String() string {
	if k < 0 || int(k) >= len(outcomeNames) {
		return fmt.Sprintf("outcome(%d)", int(k))
	}
	return outcomeNames[k]
}

// Outcome is the classification of one audio event against one frame.
// Label and DoA are set for every kind except NoNewSound. Class is the
// mapped detector class when one exists. Candidates is only populated for
// MatchFound and holds the class-matching objects in input order, before
// any angular filtering.
type Outcome struct {
	Kind       OutcomeKind
	Label      string
	DoA        int
	Class      string
	Candidates []DetectedObject
}

// Acted reports whether the outcome consumed a sound event.
func (o Outcome) Acted() bool {
	return o.Kind != NoNewSound
}
