// Package hub pushes dashboard frames to browsers over websockets.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AsHfIEXE/SigVoid/internal/dashboard"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 16
)

type message struct {
	Event string `json:"event"`
	dashboard.Frame
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans each rendered frame out to every connected client. A client whose
// buffer is full is disconnected rather than allowed to stall the others.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	onCount  func(int)

	mu      sync.RWMutex
	clients map[string]*client
	last    []byte
}

func New(logger *zap.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		logger:  logger,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if origin == allowed || allowed == "*" {
					return true
				}
			}
			return false
		}
	}
	return h
}

// OnClientCount registers a hook called with the client count after every
// connect and disconnect.
func (h *Hub) OnClientCount(fn func(int)) {
	h.onCount = fn
}

// Render implements dashboard.Sink.
func (h *Hub) Render(fr dashboard.Frame) {
	data, err := json.Marshal(message{Event: "update", Frame: fr})
	if err != nil {
		h.logger.Error("marshal frame", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.last = data
	var slow []*client
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", zap.String("client_id", c.id))
		h.remove(c.id)
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c.id] = c
	if h.last != nil {
		c.send <- h.last
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("dashboard client connected", zap.String("client_id", c.id), zap.String("remote", r.RemoteAddr))
	if h.onCount != nil {
		h.onCount(count)
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.remove(id)
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	h.logger.Info("dashboard client disconnected", zap.String("client_id", id))
	if h.onCount != nil {
		h.onCount(count)
	}
}

// readPump only services control frames; the dashboard never sends data.
func (h *Hub) readPump(c *client) {
	defer h.remove(c.id)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Warn("websocket write failed", zap.String("client_id", c.id), zap.Error(err))
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
