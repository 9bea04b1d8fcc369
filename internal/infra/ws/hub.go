// Package ws is Transport Adapter: it owns the websocket connections of
// this instance and delivers outbound messages to the addressed user or
// agent. It holds no routing logic.
package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"support-chat-router/internal/domain/model"
	"support-chat-router/internal/domain/ports/adapter"
	"support-chat-router/internal/infra/metrics"
)

const sendBuffer = 32

// Client is one connected socket bound to an authenticated actor.
type Client struct {
	Actor model.Actor

	sock   *websocket.Conn
	send   chan model.ChatMessage
	mu     sync.Mutex
	closed bool
}

// ReadJSON blocks on the next inbound frame.
func (c *Client) ReadJSON(v interface{}) error { return c.sock.ReadJSON(v) }

func (c *Client) writePump() {
	for msg := range c.send {
		if err := c.sock.WriteJSON(msg); err != nil {
			break
		}
	}
	_ = c.sock.Close()
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// enqueue is non-blocking; false means closed or full.
func (c *Client) enqueue(msg model.ChatMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

var _ adapter.Transport = (*Hub)(nil)

// Hub is the per-instance connection registry: at most one live socket
// per user identity and per agent identity.
type Hub struct {
	mu     sync.RWMutex
	users  map[string]*Client
	agents map[string]*Client
	log    *zerolog.Logger
}

func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		users:  make(map[string]*Client),
		agents: make(map[string]*Client),
		log:    logger,
	}
}

// Register binds a socket to the actor, replacing any stale connection
// for the same identity.
func (h *Hub) Register(actor model.Actor, sock *websocket.Conn) *Client {
	c := &Client{Actor: actor, sock: sock, send: make(chan model.ChatMessage, sendBuffer)}
	if sock != nil {
		go c.writePump()
	}

	h.mu.Lock()
	reg := h.users
	if actor.IsAgent() {
		reg = h.agents
	}
	if prev, ok := reg[actor.ID]; ok && prev != c {
		prev.close()
	}
	reg[actor.ID] = c
	h.mu.Unlock()

	metrics.ConnOpened(string(actor.Role))
	h.log.Info().Str("actor", actor.ID).Str("role", string(actor.Role)).Msg("connection registered")
	return c
}

// Unregister drops the client if it is still the current one for its
// identity; a replaced connection unregistering late is ignored.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	reg := h.users
	if c.Actor.IsAgent() {
		reg = h.agents
	}
	if cur, ok := reg[c.Actor.ID]; ok && cur == c {
		delete(reg, c.Actor.ID)
	}
	h.mu.Unlock()

	c.close()
	metrics.ConnClosed(string(c.Actor.Role))
	h.log.Info().Str("actor", c.Actor.ID).Str("role", string(c.Actor.Role)).Msg("connection unregistered")
}

func (h *Hub) SendToUser(userID string, msg model.ChatMessage) error {
	h.mu.RLock()
	c, ok := h.users[userID]
	h.mu.RUnlock()
	return h.deliver(c, ok, "user", msg)
}

func (h *Hub) SendToAgent(agentID string, msg model.ChatMessage) error {
	h.mu.RLock()
	c, ok := h.agents[agentID]
	h.mu.RUnlock()
	return h.deliver(c, ok, "agent", msg)
}

func (h *Hub) BroadcastAgents(msg model.ChatMessage) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.agents))
	for _, c := range h.agents {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		_ = h.deliver(c, true, "agent", msg)
	}
}

// deliver enqueues without blocking; a missing local connection is not
// an error, another instance may hold it.
func (h *Hub) deliver(c *Client, ok bool, role string, msg model.ChatMessage) error {
	if !ok || c == nil {
		metrics.IncDelivery(role, "no_conn")
		return nil
	}
	if c.enqueue(msg) {
		metrics.IncDelivery(role, "sent")
	} else {
		metrics.IncDelivery(role, "error")
		h.log.Warn().Str("actor", c.Actor.ID).Msg("send buffer full or closed, dropping message")
	}
	return nil
}
