package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shahjoyal/view-bunker/internal/logging"
	"github.com/shahjoyal/view-bunker/internal/monitor"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Message types sent over /ws.
const (
	MessageSnapshot = "snapshot" // first message after connecting
	MessageUpdate   = "update"
)

// Message is the websocket envelope.
type Message struct {
	Type string         `json:"type"`
	Data monitor.Update `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// Hub fans live updates out to websocket clients. A client whose buffer
// fills up is disconnected.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	bufSize int
	dropped int
}

// NewHub creates a hub with the given per-client buffer.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Hub{clients: make(map[*client]struct{}), bufSize: bufSize}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many clients were disconnected for falling behind.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.once.Do(func() { close(c.send) })
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// Broadcast queues msg for every client.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped++
			h.removeLocked(c)
			logging.Get(logging.CategoryServer).Warn("dropping slow websocket client %s", c.conn.RemoteAddr())
		}
	}
}

// Run broadcasts every update from src until ctx is done or src closes,
// then disconnects all clients.
func (h *Hub) Run(ctx context.Context, src <-chan monitor.Update) error {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-src:
			if !ok {
				return nil
			}
			msg, err := json.Marshal(Message{Type: MessageUpdate, Data: u})
			if err != nil {
				logging.Get(logging.CategoryServer).Error("failed to encode update: %v", err)
				continue
			}
			h.Broadcast(msg)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Get(logging.CategoryServer).Warn("websocket upgrade failed: %v", err)
		return
	}

	first, err := json.Marshal(Message{Type: MessageSnapshot, Data: s.monitor.Current()})
	if err != nil {
		conn.Close()
		return
	}
	c := &client{conn: conn, send: make(chan []byte, s.hub.bufSize)}
	c.send <- first
	s.hub.add(c)

	go c.writePump()
	c.readPump()
	s.hub.remove(c)
}

// readPump discards client messages and returns when the peer goes away.
func (c *client) readPump() {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
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
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
