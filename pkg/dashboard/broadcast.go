package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 << 10
	sendBuffer     = 64
)

// client is one dashboard WebSocket. Only writePump writes to conn.
type client struct {
	b        *Broadcaster
	conn     *websocket.Conn
	send     chan []byte
	finished chan struct{}
}

// Broadcaster fans messages out to WebSocket clients. Registration and
// delivery happen on the Run goroutine; slow clients are dropped.
type Broadcaster struct {
	name       string
	clients    map[*client]struct{}
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	log        *slog.Logger

	dropped atomic.Uint64
}

// NewBroadcaster creates a broadcaster. Call Run before serving clients.
func NewBroadcaster(name string, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		name:       name,
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        logger.With("component", "dashboard", "stream", name),
	}
}

// Run delivers messages until ctx is cancelled, then closes every client.
func (b *Broadcaster) Run(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for c := range b.clients {
				close(c.send)
				delete(b.clients, c)
			}
			b.mu.Unlock()
			return

		case c := <-b.register:
			b.mu.Lock()
			b.clients[c] = struct{}{}
			count := len(b.clients)
			b.mu.Unlock()
			b.log.Debug("client connected", "clients", count)

		case c := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[c]; ok {
				delete(b.clients, c)
				close(c.send)
			}
			count := len(b.clients)
			b.mu.Unlock()
			b.log.Debug("client disconnected", "clients", count)

		case msg := <-b.broadcast:
			b.mu.Lock()
			for c := range b.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(b.clients, c)
					b.dropped.Add(1)
					b.log.Warn("dropped slow client")
				}
			}
			b.mu.Unlock()
		}
	}
}

// Broadcast queues data for every client. It never blocks; when the queue
// is full the message is dropped.
func (b *Broadcaster) Broadcast(data []byte) {
	select {
	case b.broadcast <- data:
	default:
		b.log.Warn("broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Dropped returns how many slow clients have been disconnected.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Serve runs conn until it disconnects. initial, when non-nil, is sent
// before any broadcast.
func (b *Broadcaster) Serve(conn *websocket.Conn, initial []byte) {
	c := &client{
		b:        b,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		finished: make(chan struct{}),
	}
	if initial != nil {
		c.send <- initial
	}

	select {
	case b.register <- c:
	case <-b.done:
		return
	}

	go c.writePump()
	c.readPump()

	select {
	case b.unregister <- c:
	case <-b.done:
	}
	// The connection is released when the handler returns.
	<-c.finished
}

// readPump discards client messages. It keeps the read deadline moving on
// pongs and returns when the connection drops.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.finished)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.abort()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.abort()
				return
			}
		}
	}
}

// abort closes the connection so readPump returns, then drains send until
// the broadcaster closes it.
func (c *client) abort() {
	c.conn.Close()
	for range c.send {
	}
}
