package protocol

import (
	"time"

	"github.com/teslashibe/go-soundmap/pkg/soundmatch"
)

// TimestampLayout is the wall clock format used in detection messages.
const TimestampLayout = "15:04:05"

// NewHello creates a hello message for device.
func NewHello(device string) HelloMsg {
	return HelloMsg{Type: TypeHello, Device: device, T: time.Now().UnixMilli()}
}

// NewAck creates a heartbeat message.
func NewAck() AckMsg {
	return AckMsg{Type: TypeAck, T: time.Now().UnixMilli()}
}

// NewDetection creates a detection message stamped with the current time.
func NewDetection(doa int, tags ...TagItem) DetectionMsg {
	return DetectionMsg{
		Type:      TypeDetection,
		Timestamp: time.Now().Format(TimestampLayout),
		DoA:       doa,
		Tags:      tags,
	}
}

// FromAudioEvent builds a detection message from a matcher event.
func FromAudioEvent(ev soundmatch.AudioEvent) DetectionMsg {
	msg := NewDetection(ev.DoA)
	if ev.Timestamp != "" {
		msg.Timestamp = ev.Timestamp
	}
	msg.Tags = make([]TagItem, len(ev.Tags))
	for i, t := range ev.Tags {
		msg.Tags[i] = TagItem{Label: t.Label, Score: t.Score}
	}
	return msg
}
