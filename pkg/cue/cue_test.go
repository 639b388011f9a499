package cue

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
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

func TestChime(t *testing.T) {
	c := Chime(24000, 880, 100*time.Millisecond, 0.5)

	if len(c.Samples) != 2400 {
		t.Fatalf("len(Samples) = %d, want 2400", len(c.Samples))
	}
	if c.Duration() != 100*time.Millisecond {
		t.Errorf("Duration = %v, want 100ms", c.Duration())
	}
	if c.Samples[0] != 0 {
		t.Errorf("first sample = %d, want 0", c.Samples[0])
	}

	var peak int16
	for _, s := range c.Samples {
		if s > peak {
			peak = s
		}
	}
	const maxPeak = 16383 // 0.5 of full scale
	if peak <= 0 || peak > maxPeak {
		t.Errorf("peak = %d, want in (0, %d]", peak, maxPeak)
	}

	tail := c.Samples[len(c.Samples)-10:]
	for _, s := range tail {
		if s > 200 || s < -200 {
			t.Errorf("tail sample %d should have faded out", s)
		}
	}
}

func TestChime_DefaultRate(t *testing.T) {
	c := Chime(0, 440, 10*time.Millisecond, 0.1)
	if c.SampleRate != DefaultSampleRate || len(c.Samples) != 240 {
		t.Errorf("rate=%d len=%d, want %d and 240", c.SampleRate, len(c.Samples), DefaultSampleRate)
	}
}

func TestChunkBytes(t *testing.T) {
	c := Chunk{Samples: []int16{1, -2, 0x1234}}
	want := []byte{0x01, 0x00, 0xfe, 0xff, 0x34, 0x12}
	if got := c.Bytes(); !slices.Equal(got, want) {
		t.Errorf("Bytes() = % x, want % x", got, want)
	}
	if (Chunk{Samples: []int16{1}}).Duration() != 0 {
		t.Error("Duration without a sample rate should be 0")
	}
}

func TestPlayer(t *testing.T) {
	sink := &MemorySink{}
	p := NewPlayer(sink, WithTone(440, 20*time.Millisecond), WithSampleRate(8000), WithLogger(quietLogger()))

	// Requests made before Run collapse into one.
	p.PlayPlacement()
	p.PlayPlacement()
	p.PlayPlacement()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()

	waitFor(t, "first chime", func() bool { return p.Stats().Played == 1 })
	p.PlayPlacement()
	waitFor(t, "second chime", func() bool { return p.Stats().Played == 2 })

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}

	if got := p.Stats().Collapsed; got != 2 {
		t.Errorf("Collapsed = %d, want 2", got)
	}
	chunks := sink.Chunks()
	if len(chunks) != 2 {
		t.Fatalf("recorded %d chunks, want 2", len(chunks))
	}
	if chunks[0].SampleRate != 8000 || len(chunks[0].Samples) != 160 {
		t.Errorf("chunk rate=%d len=%d, want 8000 and 160", chunks[0].SampleRate, len(chunks[0].Samples))
	}
}

func TestPlayer_SinkFailure(t *testing.T) {
	sink := &MemorySink{}
	sink.Close()
	p := NewPlayer(sink, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.PlayPlacement()
	waitFor(t, "failure", func() bool { return p.Stats().Failed == 1 })
	if p.Stats().Played != 0 {
		t.Errorf("Played = %d, want 0", p.Stats().Played)
	}
}

func TestNewSink(t *testing.T) {
	s, err := NewSink(" Memory ", "")
	if err != nil {
		t.Fatalf("NewSink(memory) error = %v", err)
	}
	if s.Name() != BackendMemory {
		t.Errorf("Name = %q, want memory", s.Name())
	}

	if _, err := NewSink("pulse", ""); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestAplayArgs(t *testing.T) {
	s := &AplaySink{path: "aplay", device: "plughw:1,0"}
	got := s.Args(24000)
	want := []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", "24000", "-D", "plughw:1,0"}
	if !slices.Equal(got, want) {
		t.Errorf("Args = %v, want %v", got, want)
	}

	s.Close()
	if err := s.Write(context.Background(), Chunk{SampleRate: 24000}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close = %v, want ErrClosed", err)
	}
}
