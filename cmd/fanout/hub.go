package main

import (
	"context"
	"sync"

	"github.com/weftlabs/weft/common/logger"
)

// Hub tracks open sockets per user and routes run events to them.
// A user may hold several sockets at once (tabs, dashboards); each
// socket optionally narrows to a single run.
type Hub struct {
	mu     sync.RWMutex
	byUser map[string][]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	log        *logger.Logger
}

// Message is one run event routed to a user's sockets
type Message struct {
	UserID string
	RunID  string
	Data   []byte
}

// NewHub creates a new hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		byUser:     make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		log:        log,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("hub started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info("hub stopping")
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case message := <-h.broadcast:
			h.route(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.byUser[client.userID] = append(h.byUser[client.userID], client)
	h.log.Info("socket registered",
		"user_id", client.userID,
		"run_filter", client.runID,
		"sockets_for_user", len(h.byUser[client.userID]))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.byUser[client.userID]
	for i, c := range clients {
		if c != client {
			continue
		}
		h.byUser[client.userID] = append(clients[:i], clients[i+1:]...)
		close(client.send)
		if len(h.byUser[client.userID]) == 0 {
			delete(h.byUser, client.userID)
		}
		h.log.Info("socket unregistered",
			"user_id", client.userID,
			"sockets_for_user", len(h.byUser[client.userID]))
		return
	}
}

// route delivers a message to every socket of its user whose run filter
// matches. A socket with a full buffer loses the event rather than the
// connection; clients reconcile through the run API.
func (h *Hub) route(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.byUser[message.UserID] {
		if client.runID != "" && client.runID != message.RunID {
			continue
		}
		select {
		case client.send <- message.Data:
		default:
			h.log.Warn("socket buffer full, dropping event",
				"user_id", client.userID,
				"run_id", message.RunID)
		}
	}
}

// ConnectionCount returns the total number of open sockets
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, clients := range h.byUser {
		count += len(clients)
	}
	return count
}

// UserCount returns the number of distinct connected users
func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.byUser)
}
