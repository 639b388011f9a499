// Package relay is the host side of the headset link. Headsets connect over
// WebSocket; classified sounds posted by the audio pipeline are fanned out
// to every connected headset.
package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-soundmap/pkg/protocol"
)

var ErrHeadsetNotConnected = errors.New("relay: headset not connected")

// HeadsetConnection represents a connected headset
type HeadsetConnection struct {
	ID        string
	Device    string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send writes an encoded message to the headset.
func (h *HeadsetConnection) Send(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Conn.WriteMessage(websocket.TextMessage, data)
}

func (h *HeadsetConnection) touch(device string) {
	h.mu.Lock()
	h.LastSeen = time.Now()
	if device != "" {
		h.Device = device
	}
	h.mu.Unlock()
}

// Hub manages headset connections.
type Hub struct {
	mu       sync.RWMutex
	headsets map[string]*HeadsetConnection
	log      *slog.Logger

	onDetection func(msg *protocol.DetectionMsg)

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	detections       atomic.Uint64
	rejected         atomic.Uint64
}

// NewHub creates a hub. A nil logger uses slog.Default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		headsets: make(map[string]*HeadsetConnection),
		log:      logger.With("component", "relay"),
	}
}

// OnDetection sets a callback invoked for every accepted detection.
func (h *Hub) OnDetection(callback func(msg *protocol.DetectionMsg)) {
	h.mu.Lock()
	h.onDetection = callback
	h.mu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app.
//
//	/ws/source  audio pipeline pushing detections
//	/ws         headset, server assigned id
//	/ws/:id     headset with a fixed id
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/source", websocket.New(h.handleSource))
	app.Get("/ws", websocket.New(h.handleHeadset))
	app.Get("/ws/:id", websocket.New(h.handleHeadset))
}

func (h *Hub) handleHeadset(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	headset := &HeadsetConnection{
		ID:        id,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	if old, ok := h.headsets[id]; ok {
		h.log.Warn("replacing headset connection", "id", id)
		old.Conn.Close()
	}
	h.headsets[id] = headset
	count := len(h.headsets)
	h.mu.Unlock()

	h.log.Info("headset connected", "id", id, "total", count)

	defer func() {
		h.mu.Lock()
		if h.headsets[id] == headset {
			delete(h.headsets, id)
		}
		count := len(h.headsets)
		h.mu.Unlock()

		h.log.Info("headset disconnected", "id", id, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.log.Debug("headset read ended", "id", id, "error", err)
			return
		}

		h.messagesReceived.Add(1)
		h.handleHeadsetMessage(headset, data)
	}
}

func (h *Hub) handleHeadsetMessage(headset *HeadsetConnection, data []byte) {
	msgType, err := protocol.PeekType(data)
	if err != nil {
		h.log.Warn("parse error", "id", headset.ID, "error", err)
		return
	}

	switch msgType {
	case protocol.TypeHello:
		var hello protocol.HelloMsg
		if err := decode(data, &hello); err != nil {
			h.log.Warn("bad hello", "id", headset.ID, "error", err)
			return
		}
		headset.touch(hello.Device)
		h.log.Info("headset hello", "id", headset.ID, "device", hello.Device)
		h.reply(headset, protocol.NewAck())

	case protocol.TypeAck:
		headset.touch("")
		h.reply(headset, protocol.NewAck())

	default:
		headset.touch("")
		h.log.Debug("ignoring headset message", "id", headset.ID, "type", msgType)
	}
}

func (h *Hub) handleSource(c *websocket.Conn) {
	h.log.Info("audio source connected", "remote", c.RemoteAddr().String())
	defer h.log.Info("audio source disconnected", "remote", c.RemoteAddr().String())

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		h.messagesReceived.Add(1)

		msg, err := protocol.ParseDetection(data)
		if err != nil {
			h.rejected.Add(1)
			h.log.Warn("bad detection from source", "error", err)
			continue
		}
		if _, err := h.Publish(msg); err != nil {
			h.log.Debug("detection rejected", "error", err)
		}
	}
}

func (h *Hub) reply(headset *HeadsetConnection, v any) {
	data, err := protocol.Encode(v)
	if err != nil {
		return
	}
	h.messagesSent.Add(1)
	if err := headset.Send(data); err != nil {
		h.log.Warn("send failed", "id", headset.ID, "error", err)
	}
}

// Publish validates a detection and sends it to every headset. It returns
// the number of headsets it was delivered to.
func (h *Hub) Publish(msg *protocol.DetectionMsg) (int, error) {
	if err := msg.Validate(); err != nil {
		h.rejected.Add(1)
		return 0, err
	}
	msg.Type = protocol.TypeDetection
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().Format(protocol.TimestampLayout)
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return 0, err
	}

	h.detections.Add(1)

	h.mu.RLock()
	callback := h.onDetection
	h.mu.RUnlock()
	if callback != nil {
		callback(msg)
	}

	return h.Broadcast(data), nil
}

// SendTo sends an encoded message to one headset.
func (h *Hub) SendTo(id string, data []byte) error {
	h.mu.RLock()
	headset, ok := h.headsets[id]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrHeadsetNotConnected, id)
	}

	h.messagesSent.Add(1)
	return headset.Send(data)
}

// Broadcast sends an encoded message to all headsets and returns how many
// sends succeeded.
func (h *Hub) Broadcast(data []byte) int {
	headsets := h.Headsets()

	delivered := 0
	for _, headset := range headsets {
		h.messagesSent.Add(1)
		if err := headset.Send(data); err != nil {
			h.log.Warn("broadcast error", "id", headset.ID, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Headset returns a headset connection by ID.
func (h *Hub) Headset(id string) *HeadsetConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.headsets[id]
}

// Headsets returns all connected headsets.
func (h *Hub) Headsets() []*HeadsetConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	headsets := make([]*HeadsetConnection, 0, len(h.headsets))
	for _, hs := range h.headsets {
		headsets = append(headsets, hs)
	}
	return headsets
}

// HeadsetCount returns the number of connected headsets.
func (h *Hub) HeadsetCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.headsets)
}

// Stats contains hub statistics
type Stats struct {
	HeadsetCount     int    `json:"headset_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	Detections       uint64 `json:"detections"`
	Rejected         uint64 `json:"rejected"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		HeadsetCount:     h.HeadsetCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		Detections:       h.detections.Load(),
		Rejected:         h.rejected.Load(),
	}
}

// HeadsetInfo describes a connected headset.
type HeadsetInfo struct {
	ID        string    `json:"id"`
	Device    string    `json:"device,omitempty"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// HeadsetInfos returns info about all connected headsets.
func (h *Hub) HeadsetInfos() []HeadsetInfo {
	headsets := h.Headsets()

	infos := make([]HeadsetInfo, 0, len(headsets))
	for _, hs := range headsets {
		hs.mu.Lock()
		infos = append(infos, HeadsetInfo{
			ID:        hs.ID,
			Device:    hs.Device,
			Connected: hs.Connected,
			LastSeen:  hs.LastSeen,
		})
		hs.mu.Unlock()
	}
	return infos
}
