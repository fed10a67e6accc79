// Package websocket provides WebSocket connection management and message broadcasting.
package websocket

import (
	"log"
	"sync"

	"github.com/planner-dashboard/backend/internal/calendar"
)

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages for all clients
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Guards clients and each client's permission
	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main event loop.
// This should be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client connected (total: %d)", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected (total: %d)", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client send buffer full, close connection
					client.close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for all connected clients. It returns false
// when the queue is full and the message was dropped.
func (h *Hub) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		log.Println("Broadcast channel full, dropping message")
		return false
	}
}

// SendTo queues a message for a single client. Messages for a client that
// has not finished registering are buffered.
func (h *Hub) SendTo(client *Client, message []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if client.closed {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		return false
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

// SetPermission records the notification permission a client reported.
func (h *Hub) SetPermission(client *Client, p calendar.Permission) {
	h.mu.Lock()
	client.permission = p
	h.mu.Unlock()
}

// GrantedCount returns the number of connected clients that allowed notifications.
func (h *Hub) GrantedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for client := range h.clients {
		if client.permission == calendar.PermissionGranted {
			n++
		}
	}
	return n
}

// SendToGranted queues a message for every client that allowed
// notifications. It returns how many such clients there are and how many
// accepted the message; a client with a full buffer is skipped.
func (h *Hub) SendToGranted(message []byte) (granted, delivered int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.permission != calendar.PermissionGranted || client.closed {
			continue
		}
		granted++
		select {
		case client.send <- message:
			delivered++
		default:
		}
	}
	return granted, delivered
}

// Client represents a WebSocket client connection.
type Client struct {
	hub        *Hub
	send       chan []byte
	permission calendar.Permission
	closed     bool
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, 256),
		permission: calendar.PermissionDefault,
	}
}

// close shuts the send channel. Caller must hold the hub lock.
func (c *Client) close() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Send returns the send channel for the client.
func (c *Client) Send() chan []byte {
	return c.send
}
