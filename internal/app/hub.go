package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// keyEvent is sent by the page when a key is pressed.
type keyEvent struct {
	Key int `json:"key"`
}

// hub tracks websocket clients, broadcasts status and forwards key events.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	onKey   func(key int)
}

func newHub() *hub {
	return &hub{clients: map[*websocket.Conn]bool{}}
}

// handleWS upgrades HTTP to websocket and registers the client for broadcasts.
func (a *App) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	a.hub.add(conn)
	go a.hub.readLoop(conn)
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if !ok {
		return
	}
	if err := conn.Close(); err != nil {
		slog.Debug("failed to close websocket", "error", err)
	}
}

func (h *hub) readLoop(conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev keyEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			slog.Debug("ignoring websocket message", "error", err)
			continue
		}
		if h.onKey != nil {
			h.onKey(ev.Key)
		}
	}
}

// broadcastJSON sends v to all connected websocket clients.
func (h *hub) broadcastJSON(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal broadcast", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.WriteMessage(websocket.TextMessage, msg)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		h.remove(c)
	}
}
