package headset

import (
	"context"

	"github.com/teslashibe/go-soundmap/pkg/ingest"
	"github.com/teslashibe/go-soundmap/pkg/placement"
	"github.com/teslashibe/go-soundmap/pkg/scene"
	"github.com/teslashibe/go-soundmap/pkg/soundmatch"
)

// ReplayRow is the result of one scripted step.
type ReplayRow struct {
	Step     int
	Note     string
	Recenter bool
	Outcome  soundmatch.Outcome
	Angle    float64 // Angle to the selected candidate, -1 if none
	Spawned  bool
	Markers  int
	Notified []int
}

// Replay runs every step of sc through a fresh controller, one tick per
// step. Events go through a Mailbox exactly as they would from the
// network.
func Replay(ctx context.Context, sc *scene.Scene, matcher *soundmatch.Matcher, opts ...placement.Option) []ReplayRow {
	var mailbox ingest.Mailbox
	static := scene.NewStatic(sc)
	ctrl := placement.New(matcher, &mailbox, opts...)

	var notified []int
	ctrl.OnMarkersChanged(func(n int) { notified = append(notified, n) })

	rows := make([]ReplayRow, 0, len(sc.Steps))
	for i, st := range sc.Steps {
		if ctx.Err() != nil {
			break
		}
		notified = nil

		if st.Objects != nil {
			static.SetObjects(*st.Objects)
		}
		if st.Recenter {
			ctrl.Recenter()
		}
		if ev, ok := st.Event(); ok {
			mailbox.Put(ev)
		}

		res := ctrl.Tick(ctx, placement.Frame{Objects: static.Objects(), Pose: static.Pose()})

		row := ReplayRow{
			Step:     i + 1,
			Note:     st.Note,
			Recenter: st.Recenter,
			Outcome:  res.Outcome,
			Angle:    -1,
			Spawned:  res.Spawned(),
			Markers:  ctrl.Count(),
			Notified: notified,
		}
		if res.Selection.Index >= 0 {
			row.Angle = res.Selection.Angle
		}
		rows = append(rows, row)
	}
	return rows
}
