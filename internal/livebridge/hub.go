// Package livebridge implements the local WebSocket fan-out surface a
// dashboard-style observer UI attaches to: multiplexed "event" and
// "service_snapshot" frames mirroring the supervisor's SSE stream and
// tray tooltip data.
package livebridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/ds-codi/pm-supervisor/internal/events"
	"github.com/ds-codi/pm-supervisor/internal/orchestrator"
)

// FrameKind tags the two multiplexed message shapes sent over the bridge.
type FrameKind string

const (
	FrameEvent           FrameKind = "event"
	FrameServiceSnapshot FrameKind = "service_snapshot"
)

// Frame is the JSON envelope sent to every connected observer.
type Frame struct {
	Kind        FrameKind                    `json:"kind"`
	Event       *events.StampedEvent         `json:"event,omitempty"`
	Services    []orchestrator.ServiceSummary `json:"services,omitempty"`
	ClientCount int                          `json:"client_count,omitempty"`
}

// maxSlowCount is the number of consecutive dropped sends before a client
// is forcibly disconnected.
const maxSlowCount = 3

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	slowCount int
}

// Hub manages every connected observer WebSocket and fans frames out to
// all of them. A lagging client is dropped after maxSlowCount consecutive
// missed sends rather than allowed to block the rest of the hub.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	broadcast  chan []byte
	register   chan *client
	unregister chan *client
}

// NewHub builds an idle Hub. Call Run to start its dispatch loop.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run drives the hub's registration/broadcast dispatch loop until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case payload := <-h.broadcast:
			h.mu.Lock()
			var toRemove []*client
			for c := range h.clients {
				select {
				case c.send <- payload:
					c.slowCount = 0
				default:
					c.slowCount++
					if c.slowCount >= maxSlowCount {
						h.logger.Warn("livebridge: client too slow, disconnecting", "missed", c.slowCount)
						toRemove = append(toRemove, c)
					}
				}
			}
			for _, c := range toRemove {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of currently connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastEvent fans a StampedEvent out to every connected observer. Meant
// to be wired as an events.Handle emit hook.
func (h *Hub) BroadcastEvent(evt events.StampedEvent) {
	h.broadcastFrame(Frame{Kind: FrameEvent, Event: &evt})
}

// BroadcastSnapshot fans a periodic service-status snapshot out to every
// connected observer.
func (h *Hub) BroadcastSnapshot(services []orchestrator.ServiceSummary, clientCount int) {
	h.broadcastFrame(Frame{Kind: FrameServiceSnapshot, Services: services, ClientCount: clientCount})
}

func (h *Hub) broadcastFrame(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("livebridge: frame marshal error", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("livebridge: broadcast channel full, dropping frame", "kind", frame.Kind)
	}
}

// ServeHTTP accepts a WebSocket connection and drives its read/write pumps
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*"},
	})
	if err != nil {
		h.logger.Warn("livebridge: accept error", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256)}
	h.register <- c
	h.logger.Info("livebridge: client connected", "clients", h.ClientCount())

	done := make(chan struct{})
	go h.pingLoop(c, done)
	go h.writePump(c)
	h.readPump(c)
	close(done)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close(websocket.StatusNormalClosure, "")
	for payload := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			return
		}
	}
}

func (h *Hub) pingLoop(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Info("livebridge: client disconnected", "clients", h.ClientCount())
	}()
	for {
		// Observers are read-only: any inbound frame is drained and
		// discarded. Reading still detects disconnects.
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}
