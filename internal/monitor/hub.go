// Package monitor stands in for the game loop when xtouchd runs on its own:
// it polls the bridge every frame and streams mask changes to websocket
// clients, alongside the metrics, health and zone endpoints.
package monitor

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"xtouchd/internal/logging"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64
)

// Frame is one player's poll result as sent to clients.
type Frame struct {
	Player string    `json:"player"`
	Mask   uint64    `json:"mask"`
	Zones  []string  `json:"zones"`
	Time   time.Time `json:"time"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans frames out to connected websocket clients. Slow clients miss
// frames rather than stalling the poller.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	latest  map[string][]byte
	logger  *logging.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		latest:  make(map[string][]byte),
		logger:  logger.WithComponent("monitor"),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends f to every client and remembers it as the player's
// latest frame for clients that connect later.
func (h *Hub) Broadcast(f Frame) {
	msg, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("encode frame", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest[f.Player] = msg
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// HandleWS serves one client until it disconnects.
func (h *Hub) HandleWS(conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	for _, msg := range h.latest {
		c.send <- msg
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("monitor client connected", "remote", conn.RemoteAddr().String())

	go c.writer()
	c.reader(h)
}

// reader discards client messages; it exists to notice the close.
func (c *client) reader(h *Hub) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
		c.conn.Close()
		h.logger.Debug("monitor client disconnected")
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writer() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
	}
}
