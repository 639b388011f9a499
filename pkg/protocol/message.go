// Package protocol defines the WebSocket messages exchanged between the
// headset and the audio classification host.
//
// Messages are flat JSON objects discriminated by their "type" field.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/teslashibe/go-soundmap/pkg/soundmatch"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Headset → host
	TypeHello MessageType = "hello" // Sent once after connecting

	// Host → headset
	TypeDetection MessageType = "detection" // Classified sound with DoA

	// Bidirectional
	TypeAck MessageType = "ack" // Heartbeat
)

// DoA bounds in degrees, inclusive.
const (
	MinDoA = 0
	MaxDoA = 359
)

var (
	ErrNoTags        = errors.New("protocol: detection has no tags")
	ErrDoAOutOfRange = errors.New("protocol: doa out of range")
	ErrWrongType     = errors.New("protocol: unexpected message type")
)

// HelloMsg announces a headset to the host.
type HelloMsg struct {
	Type   MessageType `json:"type"`
	Device string      `json:"device"`
	T      int64       `json:"t"` // Unix milliseconds
}

// AckMsg is the periodic heartbeat.
type AckMsg struct {
	Type MessageType `json:"type"`
	T    int64       `json:"t"` // Unix milliseconds
}

// TagItem is one classifier label with its confidence.
type TagItem struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// DetectionMsg carries one classified sound.
type DetectionMsg struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"` // Wall clock, e.g. "17:16:31"
	DoA       int         `json:"doa"`       // Degrees, 0 = straight ahead, clockwise
	Tags      []TagItem   `json:"tags"`
}

// Validate checks that the detection can drive placement.
func (d *DetectionMsg) Validate() error {
	if len(d.Tags) == 0 {
		return ErrNoTags
	}
	if d.DoA < MinDoA || d.DoA > MaxDoA {
		return fmt.Errorf("%w: %d", ErrDoAOutOfRange, d.DoA)
	}
	return nil
}

// AudioEvent converts the message into the matcher's event type.
func (d *DetectionMsg) AudioEvent() soundmatch.AudioEvent {
	tags := make([]soundmatch.Tag, len(d.Tags))
	for i, t := range d.Tags {
		tags[i] = soundmatch.Tag{Label: t.Label, Score: t.Score}
	}
	return soundmatch.AudioEvent{DoA: d.DoA, Tags: tags, Timestamp: d.Timestamp}
}

type typeWrapper struct {
	Type MessageType `json:"type"`
}

// PeekType extracts the "type" field without decoding the rest.
// An object without a type yields "" and no error.
func PeekType(data []byte) (MessageType, error) {
	var w typeWrapper
	if err := json.Unmarshal(data, &w); err != nil {
		return "", fmt.Errorf("failed to parse message: %w", err)
	}
	return MessageType(strings.TrimSpace(string(w.Type))), nil
}

// ParseDetection decodes a detection message. It does not validate it.
func ParseDetection(data []byte) (*DetectionMsg, error) {
	var msg DetectionMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse detection: %w", err)
	}
	if msg.Type != "" && msg.Type != TypeDetection {
		return nil, fmt.Errorf("%w: %q", ErrWrongType, msg.Type)
	}
	return &msg, nil
}

// Encode returns the JSON encoding of any protocol message.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}
