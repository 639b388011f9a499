// Package cue plays the short chime that confirms a marker placement.
package cue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Chime defaults.
const (
	DefaultSampleRate = 24000
	DefaultFrequency  = 880.0
	DefaultDuration   = 120 * time.Millisecond
	DefaultAmplitude  = 0.4
)

var ErrClosed = errors.New("cue: sink closed")

// Chunk is mono PCM16 audio.
type Chunk struct {
	Samples    []int16
	SampleRate int
}

// Bytes returns the samples as little-endian PCM16.
func (c Chunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// Duration returns the playing time of the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Sink plays audio.
type Sink interface {
	// Write plays chunk and returns when it has been handed to the device.
	Write(ctx context.Context, chunk Chunk) error
	// Name returns the backend name, e.g. "aplay" or "memory".
	Name() string
	io.Closer
}

// Chime synthesises a sine tone that fades out linearly to silence.
func Chime(sampleRate int, frequency float64, d time.Duration, amplitude float64) Chunk {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	n := int(int64(sampleRate) * int64(d) / int64(time.Second))
	samples := make([]int16, n)
	for i := range samples {
		env := 1 - float64(i)/float64(n)
		v := amplitude * env * math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate))
		samples[i] = int16(v * 32767)
	}
	return Chunk{Samples: samples, SampleRate: sampleRate}
}

// Config holds player settings.
type Config struct {
	SampleRate int
	Frequency  float64
	Duration   time.Duration
	Amplitude  float64
	Logger     *slog.Logger
}

// Option configures a Player.
type Option func(*Config)

// WithTone sets the chime frequency and length.
func WithTone(frequency float64, d time.Duration) Option {
	return func(c *Config) {
		c.Frequency = frequency
		c.Duration = d
	}
}

// WithSampleRate sets the chime sample rate.
func WithSampleRate(rate int) Option {
	return func(c *Config) { c.SampleRate = rate }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Stats counts player activity.
type Stats struct {
	Played    uint64 `json:"played"`
	Collapsed uint64 `json:"collapsed"`
	Failed    uint64 `json:"failed"`
}

// Player plays the chime on its own goroutine so the frame loop never
// waits on audio. Requests made while one is pending collapse into it.
type Player struct {
	sink  Sink
	chime Chunk
	queue chan struct{}
	log   *slog.Logger

	played    atomic.Uint64
	collapsed atomic.Uint64
	failed    atomic.Uint64
}

// NewPlayer creates a player writing to sink.
func NewPlayer(sink Sink, opts ...Option) *Player {
	cfg := Config{
		SampleRate: DefaultSampleRate,
		Frequency:  DefaultFrequency,
		Duration:   DefaultDuration,
		Amplitude:  DefaultAmplitude,
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Player{
		sink:  sink,
		chime: Chime(cfg.SampleRate, cfg.Frequency, cfg.Duration, cfg.Amplitude),
		queue: make(chan struct{}, 1),
		log:   cfg.Logger.With("component", "cue", "sink", sink.Name()),
	}
}

// PlayPlacement requests one chime. It never blocks.
func (p *Player) PlayPlacement() {
	select {
	case p.queue <- struct{}{}:
	default:
		p.collapsed.Add(1)
	}
}

// Run plays requested chimes until ctx is cancelled.
func (p *Player) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.queue:
			if err := p.sink.Write(ctx, p.chime); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.failed.Add(1)
				p.log.Warn("cue playback failed", "error", err)
				continue
			}
			p.played.Add(1)
		}
	}
}

// Stats returns a snapshot of the counters.
func (p *Player) Stats() Stats {
	return Stats{
		Played:    p.played.Load(),
		Collapsed: p.collapsed.Load(),
		Failed:    p.failed.Load(),
	}
}
