package soundmatch

import (
	"math"

	"github.com/teslashibe/go-soundmap/pkg/geom"
)

// InView reports whether a DoA lies within ±sight of straight ahead.
// Both edges are inclusive and the cone wraps across 0/360.
func InView(doa, sight int) bool {
	return doa <= sight || doa >= 360-sight
}

// SignedDoA maps a 0-359 DoA onto -179..180.
func SignedDoA(doa int) int {
	if doa > 180 {
		return doa - 360
	}
	return doa
}

// Direction converts an in-view DoA into a unit ray from the viewer's head.
//
// The DoA's logical ±sight window is stretched onto the camera's physical
// ±FOV/2 window, because microphone sensitivity and camera optics are
// configured independently. The result is the head's forward vector yawed
// by the scaled angle.
func Direction(doa, sight int, pose HeadPose) geom.Vec3 {
	forward := pose.Forward.Normalize()
	if sight <= 0 {
		return forward
	}

	target := float64(SignedDoA(doa)) / float64(sight) * (pose.HorizontalFOV / 2)
	return geom.Yaw(forward, target)
}

// Selection is the candidate chosen by FindBest.
type Selection struct {
	Object DetectedObject
	Index  int     // Position in the candidate slice, -1 if none
	Angle  float64 // Degrees between the sound ray and the object
}

// FindBest returns the positioned candidate whose direction from the head
// is closest to dir. Candidates without a world position are skipped.
// Ties keep the first candidate in input order.
//
// ok is false when no candidate has a position, or when the closest one is
// further than threshold degrees away. In the latter case the returned
// Selection still describes the rejected candidate.
func FindBest(head, dir geom.Vec3, candidates []DetectedObject, threshold float64) (Selection, bool) {
	best := Selection{Index: -1, Angle: math.MaxFloat64}

	for i, obj := range candidates {
		if !obj.HasPosition() {
			continue
		}

		toObject := obj.WorldPos.Sub(head).Normalize()
		angle := geom.Angle(dir, toObject)
		if angle < best.Angle {
			best = Selection{Object: obj, Index: i, Angle: angle}
		}
	}

	if best.Index < 0 {
		return best, false
	}
	return best, best.Angle <= threshold
}
