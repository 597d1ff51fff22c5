package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusMessage is pushed to websocket clients whenever stream state is
// broadcast.
type StatusMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Cameras   any       `json:"cameras"`
}

// Hub fans stream status updates out to connected websocket clients.
type Hub struct {
	clients map[*websocket.Conn]chan []byte
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewHub creates a websocket hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]chan []byte),
		logger:  slog.Default().With("component", "websocket"),
	}
}

// Broadcast sends a status snapshot to every connected client. Clients
// that cannot keep up miss updates rather than blocking the broadcast.
func (h *Hub) Broadcast(cameras any) {
	msg := StatusMessage{Type: "status", Timestamp: time.Now(), Cameras: cameras}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal status broadcast", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, send := range h.clients {
		select {
		case send <- data:
		default:
		}
	}
}

// ServeHTTP upgrades the connection and streams status updates.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	send := make(chan []byte, 16)
	h.mu.Lock()
	h.clients[conn] = send
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("Client connected", "total_clients", n)

	// Reader: only there to observe close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()

	for data := range send {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(conn)
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
	h.mu.Unlock()
	_ = conn.Close()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.remove(conn)
	}
}
