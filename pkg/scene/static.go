package scene

import (
	"sync"

	"github.com/teslashibe/go-soundmap/pkg/soundmatch"
)

// Static serves a fixed pose and object list. It is always ready.
type Static struct {
	mu      sync.RWMutex
	pose    soundmatch.HeadPose
	objects []soundmatch.DetectedObject
}

// NewStatic creates a Static from a scene.
func NewStatic(s *Scene) *Static {
	return &Static{pose: s.HeadPose(), objects: s.DetectedObjects()}
}

// Objects returns the current detections.
func (st *Static) Objects() []soundmatch.DetectedObject {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]soundmatch.DetectedObject, len(st.objects))
	copy(out, st.objects)
	return out
}

// Ready always reports true.
func (st *Static) Ready() bool { return true }

// Pose returns the head pose.
func (st *Static) Pose() soundmatch.HeadPose {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.pose
}

// SetObjects replaces the detections.
func (st *Static) SetObjects(objects []Object) {
	converted := convert(objects)
	st.mu.Lock()
	st.objects = converted
	st.mu.Unlock()
}
