package headset

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-soundmap/pkg/geom"
	"github.com/teslashibe/go-soundmap/pkg/ingest"
	"github.com/teslashibe/go-soundmap/pkg/placement"
	"github.com/teslashibe/go-soundmap/pkg/scene"
	"github.com/teslashibe/go-soundmap/pkg/soundmatch"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

type fakeDetector struct {
	ready   atomic.Bool
	objects []soundmatch.DetectedObject
}

func (d *fakeDetector) Objects() []soundmatch.DetectedObject { return d.objects }
func (d *fakeDetector) Ready() bool                          { return d.ready.Load() }

type fixedPose struct{}

func (fixedPose) Pose() soundmatch.HeadPose {
	return soundmatch.HeadPose{Position: geom.Vec3{Y: 1.6}, Forward: geom.Forward, HorizontalFOV: 80}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunner(t *testing.T) {
	var mailbox ingest.Mailbox
	det := &fakeDetector{}
	matcher := soundmatch.NewMatcher(soundmatch.WithLogger(quietLogger()))
	ctrl := placement.New(matcher, &mailbox, placement.WithLogger(quietLogger()))

	runner := NewRunner(ctrl, det, fixedPose{},
		WithFrameInterval(2*time.Millisecond),
		WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- runner.Run(ctx) }()

	mailbox.Put(soundmatch.AudioEvent{DoA: 0, Tags: []soundmatch.Tag{{Label: "Speech", Score: 0.9}}})

	time.Sleep(30 * time.Millisecond)
	if !mailbox.Pending() {
		t.Fatal("event consumed before the detector was ready")
	}
	if runner.Stats().Ticks != 0 {
		t.Errorf("Ticks = %d before ready, want 0", runner.Stats().Ticks)
	}

	det.ready.Store(true)
	waitFor(t, "event handled", func() bool { return runner.Stats().Handled == 1 })

	if mailbox.Pending() {
		t.Error("event should have been consumed")
	}
	if runner.Stats().Spawned != 1 {
		t.Errorf("Spawned = %d, want 1 fallback marker", runner.Stats().Spawned)
	}

	runner.Recenter()
	waitFor(t, "recenter", func() bool { return runner.Stats().Recenters == 1 })

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// The loop has exited, so reading the controller here does not race.
	if ctrl.Count() != 0 {
		t.Errorf("Count = %d after recenter, want 0", ctrl.Count())
	}
}

func TestRunner_RecenterCollapses(t *testing.T) {
	runner := NewRunner(nil, &fakeDetector{}, fixedPose{}, WithLogger(quietLogger()))

	runner.Recenter()
	runner.Recenter()
	runner.Recenter()

	if len(runner.recenter) != 1 {
		t.Errorf("pending recenters = %d, want 1", len(runner.recenter))
	}
}

const replayScene = `
[pose]
position = [0.0, 1.6, 0.0]
forward  = [0.0, 0.0, 1.0]
hfov     = 80.0

[[objects]]
class    = "person"
position = [0.0, 1.6, 2.0]

[[steps]]
note = "speech ahead"
doa  = 0
tags = [{ label = "Speech", score = 0.9 }, { label = "Dog", score = 0.4 }]

[[steps]]
note = "idle"

[[steps]]
note = "horn behind"
doa  = 200
tags = [{ label = "Vehicle horn", score = 0.8 }]

[[steps]]
note = "bark, no dog"
doa  = 5
tags = [{ label = "Bark", score = 0.7 }]

[[steps]]
note     = "recenter"
recenter = true

[[steps]]
note    = "dog appears"
doa     = 0
tags    = [{ label = "Bark", score = 0.7 }]
objects = [{ class = "dog", position = [0.0, 1.6, 3.0] }]

[[steps]]
note = "unknown"
doa  = 0
tags = [{ label = "Unknown Noise", score = 1.0 }]
`

func TestReplay(t *testing.T) {
	sc, err := scene.Parse([]byte(replayScene))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	matcher := soundmatch.NewMatcher(soundmatch.WithLogger(quietLogger()))
	rows := Replay(context.Background(), sc, matcher, placement.WithLogger(quietLogger()))

	want := []struct {
		kind     soundmatch.OutcomeKind
		spawned  bool
		markers  int
		notified []int
	}{
		{soundmatch.MatchFound, true, 1, []int{-1, 1}},
		{soundmatch.NoNewSound, false, 1, nil},
		{soundmatch.OutOfView, false, 0, []int{-1, 0}},
		{soundmatch.NoObjectInView, true, 1, []int{-1, 1}},
		{soundmatch.NoNewSound, false, 0, []int{-1}},
		{soundmatch.MatchFound, true, 1, []int{-1, 1}},
		{soundmatch.NoMatchingRule, false, 0, []int{-1, 0}},
	}

	if len(rows) != len(want) {
		t.Fatalf("len(rows) = %d, want %d", len(rows), len(want))
	}
	for i, w := range want {
		row := rows[i]
		if row.Outcome.Kind != w.kind || row.Spawned != w.spawned || row.Markers != w.markers {
			t.Errorf("step %d (%s) = %v spawned=%v markers=%d, want %v spawned=%v markers=%d",
				row.Step, row.Note, row.Outcome.Kind, row.Spawned, row.Markers, w.kind, w.spawned, w.markers)
		}
		if !slices.Equal(row.Notified, w.notified) {
			t.Errorf("step %d (%s) notified %v, want %v", row.Step, row.Note, row.Notified, w.notified)
		}
	}

	if rows[0].Angle < 0 || rows[0].Angle > 1e-3 {
		t.Errorf("step 1 angle = %v, want ~0", rows[0].Angle)
	}
	if rows[2].Angle != -1 {
		t.Errorf("step 3 angle = %v, want -1", rows[2].Angle)
	}
}

func TestReplay_CancelledContext(t *testing.T) {
	sc, err := scene.Parse([]byte(replayScene))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows := Replay(ctx, sc, soundmatch.NewMatcher(soundmatch.WithLogger(quietLogger())), placement.WithLogger(quietLogger()))
	if len(rows) != 0 {
		t.Errorf("len(rows) = %d, want 0", len(rows))
	}
}
