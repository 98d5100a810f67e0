package api

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"logitdash/domain/core"
	"logitdash/internal"
	"logitdash/internal/reactive"
)

// InvalidationEvent tells a browser which outputs to fetch again
type InvalidationEvent struct {
	SessionID string    `json:"session_id"`
	Outputs   []string  `json:"outputs"`
	Timestamp time.Time `json:"timestamp"`
}

type sseClient struct {
	sessionID string
	channel   chan InvalidationEvent
}

// SSEHub fans invalidation events out to the event streams of a session
type SSEHub struct {
	clients    map[string]map[chan InvalidationEvent]bool
	clientsMu  sync.RWMutex
	register   chan sseClient
	unregister chan sseClient
	broadcast  chan InvalidationEvent
	done       chan struct{}
	closeOnce  sync.Once
	keepAlive  time.Duration
	log        *internal.Logger
}

// NewSSEHub creates a hub and starts its dispatch loop
func NewSSEHub(log *internal.Logger) *SSEHub {
	if log == nil {
		log = internal.DefaultLogger
	}
	hub := &SSEHub{
		clients:    make(map[string]map[chan InvalidationEvent]bool),
		register:   make(chan sseClient, 10),
		unregister: make(chan sseClient, 10),
		broadcast:  make(chan InvalidationEvent, 100),
		done:       make(chan struct{}),
		keepAlive:  30 * time.Second,
		log:        log,
	}

	go hub.run()
	return hub
}

func (h *SSEHub) run() {
	for {
		select {
		case <-h.done:
			h.clientsMu.Lock()
			for sessionID, clients := range h.clients {
				for ch := range clients {
					close(ch)
				}
				delete(h.clients, sessionID)
			}
			h.clientsMu.Unlock()
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			if h.clients[client.sessionID] == nil {
				h.clients[client.sessionID] = make(map[chan InvalidationEvent]bool)
			}
			h.clients[client.sessionID][client.channel] = true
			h.log.Debug("[SSE] client registered for session %s (total clients: %d)",
				client.sessionID, len(h.clients[client.sessionID]))
			h.clientsMu.Unlock()

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if clients, exists := h.clients[client.sessionID]; exists && clients[client.channel] {
				delete(clients, client.channel)
				close(client.channel)
				h.log.Debug("[SSE] client unregistered from session %s (remaining clients: %d)",
					client.sessionID, len(clients))
				if len(clients) == 0 {
					delete(h.clients, client.sessionID)
				}
			}
			h.clientsMu.Unlock()

		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for clientChan := range h.clients[event.SessionID] {
				select {
				case clientChan <- event:
				default:
					h.log.Warn("[SSE] client channel full for session %s, skipping event", event.SessionID)
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// Subscribe registers a stream for a session. The channel is closed after
// the returned cancel func runs or the hub closes.
func (h *SSEHub) Subscribe(sessionID string) (<-chan InvalidationEvent, func()) {
	ch := make(chan InvalidationEvent, 10)
	client := sseClient{sessionID: sessionID, channel: ch}
	select {
	case h.register <- client:
	case <-h.done:
		close(ch)
		return ch, func() {}
	}
	return ch, func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	}
}

// Notify is a session.Notifier: it queues the dirty outputs of a session
func (h *SSEHub) Notify(id core.SessionID, dirty []reactive.Key) {
	outputs := make([]string, len(dirty))
	for i, k := range dirty {
		outputs[i] = string(k)
	}
	h.Broadcast(InvalidationEvent{SessionID: id.String(), Outputs: outputs, Timestamp: time.Now().UTC()})
}

// Broadcast sends an event to all clients listening to a session
func (h *SSEHub) Broadcast(event InvalidationEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("[SSE] broadcast channel full, dropping event for session %s", event.SessionID)
	}
}

// Close stops the dispatch loop and ends every stream
func (h *SSEHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Stream writes the session's events to c until the client disconnects
func (h *SSEHub) Stream(c *gin.Context, sessionID string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events, cancel := h.Subscribe(sessionID)
	defer cancel()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			eventJSON, err := json.Marshal(event)
			if err != nil {
				h.log.Error("[SSE] failed to marshal event: %v", err)
				return true
			}
			c.SSEvent("invalidate", string(eventJSON))
			return true

		case <-time.After(h.keepAlive):
			c.SSEvent("ping", `{"status":"alive"}`)
			return true

		case <-ctx.Done():
			return false
		}
	})
}

// ActiveSessions returns sessions with connected streams
func (h *SSEHub) ActiveSessions() []string {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	sessions := make([]string, 0, len(h.clients))
	for sessionID := range h.clients {
		sessions = append(sessions, sessionID)
	}
	return sessions
}

// ClientCount returns the number of connected streams of a session
func (h *SSEHub) ClientCount(sessionID string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[sessionID])
}
