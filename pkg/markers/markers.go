// Package markers holds the live set of placed sound markers.
package markers

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-soundmap/pkg/geom"
)

// DefaultSpawnDistance is the minimum separation (meters) between two
// markers of the same label.
const DefaultSpawnDistance = 0.25

// Kind selects how a marker is rendered.
type Kind int

const (
	// Detection is the default animated marker.
	Detection Kind = iota
	// SoundEmoji is a billboarded emoji for labels that have one.
	SoundEmoji
)

func (k Kind) String() string {
	switch k {
	case Detection:
		return "detection"
	case SoundEmoji:
		return "sound_emoji"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case Detection, SoundEmoji:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("markers: unknown kind %d", int(k))
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "detection":
		*k = Detection
	case "sound_emoji":
		*k = SoundEmoji
	default:
		return fmt.Errorf("markers: unknown kind %q", text)
	}
	return nil
}

// Marker is a placed marker. Kind and Label are fixed at creation.
type Marker struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Label     string    `json:"label"`
	Position  geom.Vec3 `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// KindTable resolves a sound label to a marker kind.
// Labels listed as emoji labels (case-insensitive) get SoundEmoji,
// everything else gets Detection.
type KindTable struct {
	emoji map[string]struct{}
}

// NewKindTable builds a table from the labels that have emoji markers.
func NewKindTable(emojiLabels []string) *KindTable {
	emoji := make(map[string]struct{}, len(emojiLabels))
	for _, label := range emojiLabels {
		if key := strings.ToLower(strings.TrimSpace(label)); key != "" {
			emoji[key] = struct{}{}
		}
	}
	return &KindTable{emoji: emoji}
}

// Resolve returns the kind for a label. A nil table always resolves to Detection.
func (t *KindTable) Resolve(label string) Kind {
	if t == nil {
		return Detection
	}
	if _, ok := t.emoji[strings.ToLower(strings.TrimSpace(label))]; ok {
		return SoundEmoji
	}
	return Detection
}

// Set is the live marker set. It is owned by a single frame loop and is
// not safe for concurrent use.
type Set struct {
	markers       []Marker
	spawnDistance float64
	now           func() time.Time
}

// NewSet creates an empty set. A non-positive spawnDistance falls back to
// DefaultSpawnDistance.
func NewSet(spawnDistance float64) *Set {
	if spawnDistance <= 0 {
		spawnDistance = DefaultSpawnDistance
	}
	return &Set{spawnDistance: spawnDistance, now: time.Now}
}

// SpawnDistance returns the dedup radius.
func (s *Set) SpawnDistance() float64 {
	return s.spawnDistance
}

// HasNear reports whether a marker with the same label already sits
// strictly closer than the spawn distance to pos.
func (s *Set) HasNear(label string, pos geom.Vec3) bool {
	for _, m := range s.markers {
		if m.Label == "" || m.Label != label {
			continue
		}
		if geom.Distance(m.Position, pos) < s.spawnDistance {
			return true
		}
	}
	return false
}

// Place adds a marker unless a duplicate exists. The returned bool is
// false when the placement was suppressed.
func (s *Set) Place(kind Kind, label string, pos geom.Vec3) (Marker, bool) {
	if s.HasNear(label, pos) {
		return Marker{}, false
	}

	m := Marker{
		ID:        uuid.NewString(),
		Kind:      kind,
		Label:     label,
		Position:  pos,
		CreatedAt: s.now(),
	}
	s.markers = append(s.markers, m)
	return m, true
}

// Clear removes every marker and returns how many were removed.
func (s *Set) Clear() int {
	n := len(s.markers)
	s.markers = nil
	return n
}

// Len returns the number of live markers.
func (s *Set) Len() int {
	return len(s.markers)
}

// All returns a copy of the live markers in placement order.
func (s *Set) All() []Marker {
	out := make([]Marker, len(s.markers))
	copy(out, s.markers)
	return out
}
