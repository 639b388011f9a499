package markers

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/teslashibe/go-soundmap/pkg/geom"
)

func TestSet_PlaceAndDedup(t *testing.T) {
	s := NewSet(0.25)
	origin := geom.Vec3{X: 1, Y: 1, Z: 2}

	first, ok := s.Place(Detection, "Speech", origin)
	if !ok {
		t.Fatal("first placement should succeed")
	}
	if first.ID == "" {
		t.Error("marker should get an ID")
	}

	tests := []struct {
		name  string
		label string
		pos   geom.Vec3
		want  bool
	}{
		{"same spot", "Speech", origin, false},
		{"inside radius", "Speech", origin.Add(geom.Vec3{X: 0.1}), false},
		{"just past radius", "Speech", origin.Add(geom.Vec3{X: 0.25 + 1e-6}), true},
		{"other label same spot", "Bark", origin, true},
		{"labels are case sensitive", "speech", origin, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSet(0.25)
			s.Place(Detection, "Speech", origin)

			_, ok := s.Place(Detection, tt.label, tt.pos)
			if ok != tt.want {
				t.Errorf("Place = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestSet_ExactlyAtRadiusIsNotDuplicate(t *testing.T) {
	s := NewSet(0.5)
	s.Place(Detection, "Dog", geom.Zero)
	if s.HasNear("Dog", geom.Vec3{Z: 0.5}) {
		t.Error("distance equal to spawn distance should not count as a duplicate")
	}
}

func TestSet_Clear(t *testing.T) {
	s := NewSet(0.25)
	s.Place(Detection, "Speech", geom.Zero)
	s.Place(SoundEmoji, "Bark", geom.Vec3{X: 1})

	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if n := s.Clear(); n != 2 {
		t.Errorf("Clear removed %d, want 2", n)
	}
	if s.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", s.Len())
	}
	if _, ok := s.Place(Detection, "Speech", geom.Zero); !ok {
		t.Error("placement after Clear should succeed")
	}
}

func TestSet_AllReturnsCopy(t *testing.T) {
	s := NewSet(0.25)
	s.Place(Detection, "Speech", geom.Zero)

	all := s.All()
	all[0].Label = "mutated"

	if s.All()[0].Label != "Speech" {
		t.Error("All should return a copy")
	}
}

func TestNewSet_DefaultSpawnDistance(t *testing.T) {
	if got := NewSet(0).SpawnDistance(); got != DefaultSpawnDistance {
		t.Errorf("SpawnDistance = %v, want %v", got, DefaultSpawnDistance)
	}
}

func TestKindTable_Resolve(t *testing.T) {
	table := NewKindTable([]string{"Bark", " siren ", ""})

	tests := []struct {
		label string
		want  Kind
	}{
		{"Bark", SoundEmoji},
		{"bark", SoundEmoji},
		{"Siren", SoundEmoji},
		{"Speech", Detection},
		{"", Detection},
	}
	for _, tt := range tests {
		if got := table.Resolve(tt.label); got != tt.want {
			t.Errorf("Resolve(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}

	var nilTable *KindTable
	if nilTable.Resolve("Bark") != Detection {
		t.Error("nil table should resolve to Detection")
	}
}

func TestMarker_JSONKind(t *testing.T) {
	m := Marker{ID: "a", Kind: SoundEmoji, Label: "Bark"}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"sound_emoji"`) {
		t.Errorf("json = %s, want kind by name", data)
	}

	var back Marker
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Kind != SoundEmoji {
		t.Errorf("Kind = %v, want sound_emoji", back.Kind)
	}

	if _, err := json.Marshal(Marker{Kind: Kind(7)}); err == nil {
		t.Error("unknown kind should fail to encode")
	}
}
