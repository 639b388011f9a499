package ingest

import (
	"sync"

	"github.com/teslashibe/go-soundmap/pkg/soundmatch"
)

// Mailbox holds the most recent audio event. A newer event overwrites an
// unread one, and TakeLatest empties the slot so each event is handled once.
type Mailbox struct {
	mu      sync.Mutex
	event   soundmatch.AudioEvent
	pending bool
}

// Put stores ev, replacing any unread event. It reports whether an unread
// event was overwritten.
func (m *Mailbox) Put(ev soundmatch.AudioEvent) (replaced bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	replaced = m.pending
	m.event = ev
	m.pending = true
	return replaced
}

// TakeLatest returns the pending event and clears the slot.
func (m *Mailbox) TakeLatest() (soundmatch.AudioEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.pending {
		return soundmatch.AudioEvent{}, false
	}
	ev := m.event
	m.event = soundmatch.AudioEvent{}
	m.pending = false
	return ev, true
}

// Pending reports whether an unread event is waiting.
func (m *Mailbox) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}
