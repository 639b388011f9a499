package placement

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/teslashibe/go-soundmap/pkg/placement"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
)

type instruments struct {
	outcomes metric.Int64Counter
	spawned  metric.Int64Counter
}

func newInstruments() (instruments, error) {
	outcomes, err := meter.Int64Counter("soundmap.outcomes",
		metric.WithDescription("Classified sound events by outcome kind"))
	if err != nil {
		return noopInstruments(), err
	}
	spawned, err := meter.Int64Counter("soundmap.markers.spawned",
		metric.WithDescription("Markers placed, by marker kind"))
	if err != nil {
		return noopInstruments(), err
	}
	return instruments{outcomes: outcomes, spawned: spawned}, nil
}

func noopInstruments() instruments {
	return instruments{outcomes: noop.Int64Counter{}, spawned: noop.Int64Counter{}}
}
