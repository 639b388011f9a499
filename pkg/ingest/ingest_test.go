package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-soundmap/pkg/protocol"
	"github.com/teslashibe/go-soundmap/pkg/soundmatch"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestMailbox(t *testing.T) {
	var m Mailbox

	if _, ok := m.TakeLatest(); ok {
		t.Fatal("empty mailbox should have nothing")
	}

	if m.Put(soundmatch.AudioEvent{DoA: 10}) {
		t.Error("first Put should not report a replacement")
	}
	if !m.Put(soundmatch.AudioEvent{DoA: 20}) {
		t.Error("second Put should report a replacement")
	}
	if !m.Pending() {
		t.Error("Pending() = false after Put")
	}

	ev, ok := m.TakeLatest()
	if !ok || ev.DoA != 20 {
		t.Errorf("TakeLatest() = %+v, %v; want doa 20", ev, ok)
	}
	if _, ok := m.TakeLatest(); ok {
		t.Error("second TakeLatest should be empty")
	}
	if m.Pending() {
		t.Error("Pending() = true after take")
	}
}

func TestMailbox_Concurrent(t *testing.T) {
	var m Mailbox
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(doa int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Put(soundmatch.AudioEvent{DoA: doa})
			}
		}(i)
	}

	taken := 0
	for i := 0; i < 100; i++ {
		if _, ok := m.TakeLatest(); ok {
			taken++
		}
	}
	wg.Wait()

	if m.Pending() {
		taken++
	}
	if taken == 0 {
		t.Error("expected at least one event to survive")
	}
}

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantStored bool
		wantDoA    int
	}{
		{"detection", `{"type":"detection","timestamp":"17:16:31","doa":10,"tags":[{"label":"Speech","score":0.9}]}`, true, 10},
		{"no tags", `{"type":"detection","doa":10,"tags":[]}`, false, 0},
		{"missing tags", `{"type":"detection","doa":10}`, false, 0},
		{"doa too large", `{"type":"detection","doa":360,"tags":[{"label":"Bark","score":1}]}`, false, 0},
		{"negative doa", `{"type":"detection","doa":-5,"tags":[{"label":"Bark","score":1}]}`, false, 0},
		{"ack", `{"type":"ack","t":1}`, false, 0},
		{"hello", `{"type":"hello","device":"host"}`, false, 0},
		{"untyped", `{"doa":10,"tags":[{"label":"Bark","score":1}]}`, false, 0},
		{"unknown", `{"type":"inference","doa":10}`, false, 0},
		{"garbage", `{{{`, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient("ws://unused", WithLogger(quietLogger()))
			c.handleMessage([]byte(tt.raw))

			ev, ok := c.TakeLatest()
			if ok != tt.wantStored {
				t.Fatalf("stored = %v, want %v", ok, tt.wantStored)
			}
			if ok && ev.DoA != tt.wantDoA {
				t.Errorf("DoA = %d, want %d", ev.DoA, tt.wantDoA)
			}
			if got := c.Stats().Received; got != 1 {
				t.Errorf("Received = %d, want 1", got)
			}
		})
	}
}

func TestHandleMessage_LastWriteWins(t *testing.T) {
	c := NewClient("ws://unused", WithLogger(quietLogger()))

	c.handleMessage([]byte(`{"type":"detection","doa":10,"tags":[{"label":"Speech","score":0.9}]}`))
	c.handleMessage([]byte(`{"type":"detection","doa":300,"tags":[{"label":"Siren","score":0.6}]}`))

	ev, ok := c.TakeLatest()
	if !ok || ev.DoA != 300 || ev.Tags[0].Label != "Siren" {
		t.Errorf("TakeLatest() = %+v, want the siren at 300", ev)
	}

	stats := c.Stats()
	if stats.Stored != 2 || stats.Overwritten != 1 {
		t.Errorf("Stats = %+v, want 2 stored, 1 overwritten", stats)
	}
}

// fakeHost is a minimal audio host: it records what the headset sends and
// pushes whatever is written to send.
type fakeHost struct {
	srv      *httptest.Server
	received chan map[string]any
	send     chan []byte
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	h := &fakeHost{
		received: make(chan map[string]any, 32),
		send:     make(chan []byte, 8),
	}

	upgrader := websocket.Upgrader{}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for data := range h.send {
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if json.Unmarshal(data, &msg) == nil {
				h.received <- msg
			}
		}
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *fakeHost) url() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

func (h *fakeHost) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case msg := <-h.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message from the headset")
		return nil
	}
}

func TestClient_HelloAndDetection(t *testing.T) {
	host := newFakeHost(t)
	c := NewClient(host.url(), WithDevice("quest-test"), WithLogger(quietLogger()))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Close()

	hello := host.next(t)
	if hello["type"] != "hello" || hello["device"] != "quest-test" {
		t.Errorf("first message = %v, want hello from quest-test", hello)
	}
	if _, ok := hello["t"]; !ok {
		t.Error("hello should carry a timestamp")
	}

	data, _ := protocol.Encode(protocol.NewDetection(15, protocol.TagItem{Label: "Bark", Score: 0.7}))
	host.send <- data

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ev, ok := c.TakeLatest(); ok {
			if ev.DoA != 15 || ev.Tags[0].Label != "Bark" {
				t.Errorf("TakeLatest() = %+v", ev)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("detection never reached the mailbox")
}

func TestClient_Heartbeat(t *testing.T) {
	host := newFakeHost(t)
	c := NewClient(host.url(),
		WithHeartbeatInterval(20*time.Millisecond),
		WithLogger(quietLogger()))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Close()

	if msg := host.next(t); msg["type"] != "hello" {
		t.Fatalf("first message type = %v, want hello", msg["type"])
	}
	for i := 0; i < 2; i++ {
		if msg := host.next(t); msg["type"] != "ack" {
			t.Errorf("heartbeat type = %v, want ack", msg["type"])
		}
	}
}

func TestClient_Lifecycle(t *testing.T) {
	host := newFakeHost(t)

	t.Run("close stops loops", func(t *testing.T) {
		c := NewClient(host.url(), WithLogger(quietLogger()))
		if err := c.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if !c.Connected() {
			t.Error("Connected() = false after Start")
		}
		if err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("second Start() = %v, want ErrAlreadyStarted", err)
		}

		c.Close()
		c.Close()

		select {
		case <-c.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("receive loop did not stop")
		}
		if c.Connected() {
			t.Error("Connected() = true after Close")
		}
	})

	t.Run("context cancel stops loops", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		c := NewClient(host.url(), WithLogger(quietLogger()))
		if err := c.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		cancel()

		select {
		case <-c.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("receive loop did not stop on cancel")
		}
	})

	t.Run("start after close", func(t *testing.T) {
		c := NewClient(host.url(), WithLogger(quietLogger()))
		c.Close()
		if err := c.Start(context.Background()); !errors.Is(err, ErrClosed) {
			t.Errorf("Start() after Close = %v, want ErrClosed", err)
		}
	})
}

func TestClient_StartErrors(t *testing.T) {
	if err := NewClient("").Start(context.Background()); !errors.Is(err, ErrNoURL) {
		t.Errorf("Start() with empty url = %v, want ErrNoURL", err)
	}

	c := NewClient("ws://127.0.0.1:1/nothing",
		WithHandshakeTimeout(200*time.Millisecond),
		WithLogger(quietLogger()))
	if err := c.Start(context.Background()); err == nil {
		t.Error("Start() against a closed port should fail")
	}
}

func TestDefaultDevice(t *testing.T) {
	a, b := DefaultDevice(), DefaultDevice()
	if !strings.HasPrefix(a, "soundmap-") || a == b {
		t.Errorf("DefaultDevice() = %q, %q", a, b)
	}
}
