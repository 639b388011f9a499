package cue

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Sink backends.
const (
	BackendAplay  = "aplay"
	BackendMemory = "memory"
)

// NewSink creates a sink for backend. device is passed to backends that
// support it.
func NewSink(backend, device string) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendAplay:
		return NewAplaySink(device)
	case BackendMemory:
		return &MemorySink{}, nil
	default:
		return nil, fmt.Errorf("cue: unsupported backend %q", backend)
	}
}

// AplaySink plays each chunk through ALSA's aplay.
type AplaySink struct {
	path   string
	device string

	mu     sync.Mutex
	closed bool
}

// NewAplaySink finds aplay on PATH. An empty device uses the ALSA default.
func NewAplaySink(device string) (*AplaySink, error) {
	path, err := exec.LookPath("aplay")
	if err != nil {
		return nil, fmt.Errorf("cue: aplay not found: %w", err)
	}
	return &AplaySink{path: path, device: strings.TrimSpace(device)}, nil
}

// Args returns the aplay arguments for a chunk at sampleRate.
func (s *AplaySink) Args(sampleRate int) []string {
	args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", strconv.Itoa(sampleRate)}
	if s.device != "" {
		args = append(args, "-D", s.device)
	}
	return args
}

// Write runs aplay with chunk on stdin and waits for it to exit.
func (s *AplaySink) Write(ctx context.Context, chunk Chunk) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	cmd := exec.CommandContext(ctx, s.path, s.Args(chunk.SampleRate)...)
	cmd.Stdin = bytes.NewReader(chunk.Bytes())
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("aplay: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Name returns "aplay".
func (s *AplaySink) Name() string { return BackendAplay }

// Close stops further writes.
func (s *AplaySink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// MemorySink records every chunk instead of playing it.
type MemorySink struct {
	mu     sync.Mutex
	chunks []Chunk
	closed bool
}

// Write stores chunk.
func (m *MemorySink) Write(ctx context.Context, chunk Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.chunks = append(m.chunks, chunk)
	return nil
}

// Chunks returns the recorded chunks.
func (m *MemorySink) Chunks() []Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Chunk, len(m.chunks))
	copy(out, m.chunks)
	return out
}

// Name returns "memory".
func (m *MemorySink) Name() string { return BackendMemory }

// Close stops further writes.
func (m *MemorySink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
