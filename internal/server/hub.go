package server

import (
	"log/slog"
	"sync"

	"github.com/oszuidwest/drowsiguard/internal/types"
)

// clientBuffer is the number of pushed events a slow client may lag behind.
const clientBuffer = 16

// Client is one connected WebSocket client as seen by the hub.
type Client struct {
	events chan any
	status chan struct{}
}

// Events delivers pushed messages such as escalations and sound cues.
func (c *Client) Events() <-chan any {
	return c.events
}

// StatusRequests signals that a fresh status should be sent.
func (c *Client) StatusRequests() <-chan struct{} {
	return c.status
}

// Hub fans events out to all connected clients. Delivery never blocks: a
// client that falls behind misses events. It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Register adds a client.
func (h *Hub) Register() *Client {
	c := &Client{
		events: make(chan any, clientBuffer),
		status: make(chan struct{}, 1),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Unregister removes a client. Its channels are left open so late senders
// never panic.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client.
func (h *Hub) Broadcast(msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.events <- msg:
		default:
			slog.Warn("dropping event for slow WebSocket client")
		}
	}
}

// RequestStatus asks every client to send a fresh status. Requests made
// while one is pending are merged.
func (h *Hub) RequestStatus() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.status <- struct{}{}:
		default:
		}
	}
}

// BroadcastCue pushes a sound cue to clients that render audio themselves.
func (h *Hub) BroadcastCue(cue string) {
	h.Broadcast(types.WSSoundCue{Type: "sound", Cue: cue})
}

// BroadcastEscalation pushes the alert experience to every client.
//
//nolint:gocritic // hugeParam: escalations are rare
func (h *Hub) BroadcastEscalation(esc types.Escalation) {
	h.Broadcast(types.WSEscalateEvent{Type: "escalate", Escalation: esc})
}
