package service

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ch00k/georouter/internal/logging"
	"github.com/Ch00k/georouter/internal/router"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	subscriberSize = 64
)

// Hub fans out routing decisions to websocket subscribers. It implements router.Observer.
// Slow subscribers miss decisions rather than block routing.
type Hub struct {
	mu       sync.Mutex
	clients  map[*subscriber]struct{}
	upgrader websocket.Upgrader
	logger   *logging.Logger
	closed   bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan router.Decision
}

// NewHub creates an empty hub
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and streams decisions until the client goes away
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		h.logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	s := &subscriber{conn: conn, send: make(chan router.Decision, subscriberSize)}
	if !h.register(s) {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait),
		)
		_ = conn.Close()
		return
	}
	h.logger.Debugf("Decision subscriber connected from %s", r.RemoteAddr)

	go h.writePump(s)
	h.readPump(s)
}

func (h *Hub) register(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[s] = struct{}{}
	return true
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[s]; ok {
		delete(h.clients, s)
		close(s.send)
	}
}

// readPump drains client frames so control messages are processed
func (h *Hub) readPump(s *subscriber) {
	defer func() {
		h.unregister(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warnf("Decision subscriber error: %v", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case decision, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.conn.WriteJSON(decision); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Len returns the number of connected subscribers
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for s := range h.clients {
		delete(h.clients, s)
		close(s.send)
	}
}

// RequestRouted implements router.Observer
func (h *Hub) RequestRouted(d router.Decision) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.clients {
		select {
		case s.send <- d:
		default:
			h.logger.Warnf("Dropping decision #%d for slow subscriber", d.RequestID)
		}
	}
}

// ServerAdded implements router.Observer
func (h *Hub) ServerAdded(router.Server, int) {}

// RequestFailed implements router.Observer
func (h *Hub) RequestFailed(int, error) {}

var _ router.Observer = (*Hub)(nil)
