// Package ingest receives classified sound events from the audio host over
// WebSocket and keeps the latest one for the placement loop.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-soundmap/pkg/protocol"
	"github.com/teslashibe/go-soundmap/pkg/soundmatch"
)

// Default connection settings.
const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	writeTimeout             = 5 * time.Second
)

var (
	ErrNotConnected   = errors.New("ingest: not connected")
	ErrAlreadyStarted = errors.New("ingest: client already started")
	ErrNoURL          = errors.New("ingest: server url is empty")
	ErrClosed         = errors.New("ingest: client closed")
)

// Config holds client settings.
type Config struct {
	URL               string
	Device            string        // Sent in the hello message
	HeartbeatInterval time.Duration // Ack period
	HandshakeTimeout  time.Duration
	Logger            *slog.Logger
}

// Option configures a Client.
type Option func(*Config)

// WithDevice sets the device name announced in hello.
func WithDevice(name string) Option {
	return func(c *Config) { c.Device = name }
}

// WithHeartbeatInterval sets how often an ack is sent.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Config) { c.HeartbeatInterval = d }
}

// WithHandshakeTimeout bounds the WebSocket handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) { c.HandshakeTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultDevice returns a random device name.
func DefaultDevice() string {
	return "soundmap-" + uuid.NewString()[:8]
}

// Stats holds message counters.
type Stats struct {
	Received    uint64 `json:"received"`
	Stored      uint64 `json:"stored"`
	Dropped     uint64 `json:"dropped"`
	Overwritten uint64 `json:"overwritten"`
	AcksSent    uint64 `json:"acks_sent"`
}

// Client is a WebSocket connection to the audio host. It announces itself
// with hello, sends a periodic ack and stores every valid detection in its
// Mailbox.
type Client struct {
	cfg     Config
	mailbox Mailbox
	log     *slog.Logger

	ws   *websocket.Conn
	wsMu sync.Mutex

	started   atomic.Bool
	connected atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	received    atomic.Uint64
	stored      atomic.Uint64
	dropped     atomic.Uint64
	overwritten atomic.Uint64
	acksSent    atomic.Uint64
}

// NewClient creates a client for the host at url (ws://host:port/path).
func NewClient(url string, opts ...Option) *Client {
	cfg := Config{
		URL:               url,
		HeartbeatInterval: DefaultHeartbeatInterval,
		HandshakeTimeout:  DefaultHandshakeTimeout,
		Logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Device == "" {
		cfg.Device = DefaultDevice()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		cfg:  cfg,
		log:  cfg.Logger.With("component", "ingest", "url", url),
		done: make(chan struct{}),
	}
}

// Start dials the host, sends hello and starts the receive and heartbeat
// loops. Both stop when ctx is cancelled or Close is called.
func (c *Client) Start(ctx context.Context) error {
	if c.cfg.URL == "" {
		return ErrNoURL
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.started.Store(false)
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.URL, err)
	}

	c.wsMu.Lock()
	c.ws = ws
	c.wsMu.Unlock()
	c.connected.Store(true)

	if err := c.send(protocol.NewHello(c.cfg.Device)); err != nil {
		c.connected.Store(false)
		c.wsMu.Lock()
		c.ws = nil
		c.wsMu.Unlock()
		ws.Close()
		c.started.Store(false)
		return fmt.Errorf("failed to send hello: %w", err)
	}
	c.log.Info("connected", "device", c.cfg.Device)

	runCtx, cancel := context.WithCancel(ctx)
	c.wsMu.Lock()
	c.cancel = cancel
	c.wsMu.Unlock()

	go c.receiveLoop(runCtx, cancel, ws)
	go c.heartbeatLoop(runCtx)
	go func() {
		<-runCtx.Done()
		c.shutdown()
	}()

	return nil
}

// Close stops the loops and closes the connection. It is safe to call
// more than once.
func (c *Client) Close() error {
	c.wsMu.Lock()
	cancel := c.cancel
	c.wsMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.shutdown()
	return nil
}

// Done is closed once the receive loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Connected reports whether the connection is up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Device returns the announced device name.
func (c *Client) Device() string {
	return c.cfg.Device
}

// TakeLatest returns the latest unread detection, at most once.
func (c *Client) TakeLatest() (soundmatch.AudioEvent, bool) {
	return c.mailbox.TakeLatest()
}

// Stats returns a snapshot of the message counters.
func (c *Client) Stats() Stats {
	return Stats{
		Received:    c.received.Load(),
		Stored:      c.stored.Load(),
		Dropped:     c.dropped.Load(),
		Overwritten: c.overwritten.Load(),
		AcksSent:    c.acksSent.Load(),
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.connected.Store(false)

		c.wsMu.Lock()
		defer c.wsMu.Unlock()
		if c.ws == nil {
			close(c.done)
			return
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		c.ws.Close()
	})
}

func (c *Client) receiveLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn) {
	defer close(c.done)
	defer cancel()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.connected.Store(false)
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("connection lost", "error", err)
			} else {
				c.log.Info("disconnected")
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.send(protocol.NewAck()); err != nil {
				if errors.Is(err, ErrNotConnected) {
					return
				}
				c.log.Warn("failed to send ack", "error", err)
				continue
			}
			c.acksSent.Add(1)
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	c.received.Add(1)

	msgType, err := protocol.PeekType(data)
	if err != nil {
		c.dropped.Add(1)
		c.log.Warn("failed to parse message", "error", err, "raw", string(data))
		return
	}

	switch msgType {
	case protocol.TypeDetection:
		msg, err := protocol.ParseDetection(data)
		if err != nil {
			c.dropped.Add(1)
			c.log.Warn("failed to parse detection", "error", err)
			return
		}
		if err := msg.Validate(); err != nil {
			c.dropped.Add(1)
			c.log.Debug("dropping detection", "reason", err)
			return
		}
		if c.mailbox.Put(msg.AudioEvent()) {
			c.overwritten.Add(1)
		}
		c.stored.Add(1)
		c.log.Debug("detection stored", "doa", msg.DoA, "tags", len(msg.Tags), "timestamp", msg.Timestamp)

	case protocol.TypeAck, protocol.TypeHello:
		c.log.Debug("server message", "type", msgType)

	case "":
		c.log.Debug("message without type", "raw", string(data))

	default:
		c.log.Debug("unknown message type", "type", msgType)
	}
}

func (c *Client) send(v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}

	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.ws == nil || !c.connected.Load() {
		return ErrNotConnected
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}
