// Package websocket provides WebSocket connection management and message broadcasting.
package websocket

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// outbound is a message queued for delivery. A zero groupID reaches every client.
type outbound struct {
	groupID int64
	data    []byte
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main event loop and returns when ctx is cancelled.
// This should be called in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			slog.Debug("websocket client connected", "clients", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			slog.Debug("websocket client disconnected", "clients", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.Wants(msg.groupID) {
					continue
				}
				if !client.Enqueue(msg.data) {
					// Slow consumer; drop the connection.
					client.close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(data []byte) {
	h.BroadcastGroup(0, data)
}

// BroadcastGroup sends a message to clients watching groupID and to clients
// with no subscription.
func (h *Hub) BroadcastGroup(groupID int64, data []byte) {
	select {
	case h.broadcast <- outbound{groupID: groupID, data: data}:
	default:
		slog.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client represents a WebSocket client connection.
type Client struct {
	hub  *Hub
	send chan []byte

	mu     sync.Mutex
	groups map[int64]bool
	closed bool
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub) *Client {
	return &Client{
		hub:    hub,
		send:   make(chan []byte, 256),
		groups: make(map[int64]bool),
	}
}

// Send returns the channel the write pump drains.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Enqueue queues data for the client without blocking. It returns false if
// the queue is full or the client is closed.
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Groups returns the subscribed group IDs in ascending order.
func (c *Client) Groups() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.groups))
	for id := range c.groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Subscribe restricts delivery to the given groups, in addition to any
// already subscribed.
func (c *Client) Subscribe(groupIDs ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range groupIDs {
		c.groups[id] = true
	}
}

// Unsubscribe removes groups from the client's subscription.
func (c *Client) Unsubscribe(groupIDs ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range groupIDs {
		delete(c.groups, id)
	}
}

// Wants reports whether a message for groupID should reach the client.
// Clients without subscriptions receive everything.
func (c *Client) Wants(groupID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if groupID == 0 || len(c.groups) == 0 {
		return true
	}
	return c.groups[groupID]
}
