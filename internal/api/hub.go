package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"taskvoice/internal/domain"
)

const (
	EventMode        = "mode"
	EventPartial     = "partial"
	EventTranscript  = "transcript"
	EventTurnAdded   = "turn_appended"
	EventTurnUpdated = "turn_updated"
	EventLock        = "lock"
	EventAPIError    = "api_error"
	EventError       = "error"
	EventUsage       = "usage"

	writeWait  = 5 * time.Second
	sendBuffer = 64
)

// Frame is one event pushed to websocket clients.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans controller events out to websocket clients. It implements
// ports.EventSink and ports.UsageSink.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and streams events until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("ws upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) ModeChanged(mode domain.Mode, reason domain.ModeReason) {
	h.broadcast(EventMode, map[string]string{"mode": string(mode), "reason": string(reason)})
}

func (h *Hub) PartialTranscript(text string) {
	h.broadcast(EventPartial, map[string]string{"text": text})
}

func (h *Hub) TranscriptReady(text string) {
	h.broadcast(EventTranscript, map[string]string{"text": text})
}

func (h *Hub) TurnAppended(turn domain.Turn) {
	h.broadcast(EventTurnAdded, turn)
}

func (h *Hub) TurnUpdated(turn domain.Turn) {
	h.broadcast(EventTurnUpdated, turn)
}

func (h *Hub) LockChanged(state domain.LockState) {
	h.broadcast(EventLock, state)
}

func (h *Hub) APIErrorChanged(active bool) {
	h.broadcast(EventAPIError, map[string]bool{"active": active})
}

func (h *Hub) SessionError(code domain.ErrorCode, detail string) {
	h.broadcast(EventError, map[string]string{"code": string(code), "detail": detail})
}

func (h *Hub) UsageChanged(snapshot domain.UsageSnapshot) {
	h.broadcast(EventUsage, snapshot)
}

func (h *Hub) broadcast(eventType string, payload any) {
	data, err := json.Marshal(Frame{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Error("marshal event frame", "type", eventType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("ws client too slow, dropping event", "type", eventType)
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Info("ws client connected", "clients", len(h.clients))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Info("ws client disconnected", "clients", len(h.clients))
	}
}

// readPump drains client frames so close and ping control messages are
// processed. Clients send nothing else.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
