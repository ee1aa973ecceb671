// Package livefeed streams the currently-approved schedule to connected
// operator dashboards over WebSocket, so a human watching the floor doesn't
// have to poll. Grounded on control_plane/ws_hub.go's single-broadcaster
// hub pattern, simplified from its per-tenant metrics fan-out (this repo
// has one schedule, not one per tenant) to a single approved-schedule feed
// pushed on every Orchestrator.Approve rather than polled on a ticker.
package livefeed

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lineflow/scheduler/internal/domain"
)

const maxConnections = 200

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub manages WebSocket connections and pushes approved schedules to all of
// them. One goroutine owns the client map; Broadcast and ServeHTTP never
// touch it directly.
type Hub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan domain.Schedule
	mu         sync.RWMutex
	count      int
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan domain.Schedule, 8),
	}
}

// Run owns the client map until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxConnections {
				h.mu.Unlock()
				conn.Close()
				log.Printf("livefeed: connection rejected, max connections (%d) reached", maxConnections)
				continue
			}
			h.clients[conn] = true
			h.count = len(h.clients)
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.count = len(h.clients)
			h.mu.Unlock()

		case schedule := <-h.broadcast:
			h.sendAll(schedule)
		}
	}
}

func (h *Hub) sendAll(schedule domain.Schedule) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(schedule); err != nil {
			log.Printf("livefeed: write error: %v", err)
			go func(c *websocket.Conn) { h.unregister <- c }(conn)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.count = 0
}

// Broadcast queues schedule for delivery to every connected client. It never
// blocks the caller (the Orchestrator's mutex must never wait on network
// I/O): a full queue drops the oldest pending schedule, since only the
// latest approved schedule matters to a dashboard.
func (h *Hub) Broadcast(schedule domain.Schedule) {
	select {
	case h.broadcast <- schedule:
	default:
		select {
		case <-h.broadcast:
		default:
		}
		select {
		case h.broadcast <- schedule:
		default:
		}
	}
}

// ServeHTTP upgrades r to a WebSocket and starts streaming approved
// schedules to it until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("livefeed: upgrade failed: %v", err)
		return
	}
	h.register <- conn
	defer func() { h.unregister <- conn }()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("livefeed: read error: %v", err)
			}
			break
		}
	}
}

// ClientCount reports the number of currently connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
