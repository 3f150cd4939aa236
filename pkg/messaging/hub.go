package messaging

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"rentmarket/pkg/models"
)

// Client is one realtime connection. A user may hold several.
type Client struct {
	UserID   string
	UserName string
	Conn     *websocket.Conn
	Send     chan models.Envelope // buffered, drained by the write loop
	Done     chan struct{}

	closeOnce sync.Once
	rooms     map[string]struct{}
	pinned    map[string]struct{} // joined through join-conversations; Leave keeps them
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.Done) })
}

// enqueue drops the event when the client is gone or its queue is full.
func (c *Client) enqueue(env models.Envelope) bool {
	select {
	case <-c.Done:
		return false
	default:
	}
	select {
	case c.Send <- env:
		return true
	case <-c.Done:
		return false
	default:
		return false
	}
}

// Hub tracks live connections and the conversation rooms they joined.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // user_id -> connections
	rooms   map[string]map[*Client]struct{} // room -> members
	broker  Broker
}

// NewHub creates a hub. A nil broker keeps delivery in-process.
func NewHub(broker Broker) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		broker:  broker,
	}
}

// Run consumes deliveries from the broker until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if h.broker == nil {
		<-ctx.Done()
		return nil
	}
	return h.broker.Subscribe(ctx, h.deliver)
}

func (h *Hub) AddClient(userID, userName string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	client := &Client{
		UserID:   userID,
		UserName: userName,
		Conn:     conn,
		Send:     make(chan models.Envelope, 64),
		Done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
		pinned:   make(map[string]struct{}),
	}
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
	return client
}

// RemoveClient drops the connection from every room it joined.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	c.pinned = make(map[string]struct{})
	if conns, ok := h.clients[c.UserID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	c.close()
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(c, room)
}

// JoinMember adds the connection to room for its whole lifetime. A later
// Leave for the same room is a no-op.
func (h *Hub) JoinMember(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(c, room)
	c.pinned[room] = struct{}{}
}

func (h *Hub) joinLocked(c *Client, room string) {
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave undoes a Join. Rooms joined with JoinMember stay joined.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := c.pinned[room]; ok {
		return
	}
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// InRoom reports whether the connection joined room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// Publish implements Publisher.
func (h *Hub) Publish(ctx context.Context, d Delivery) error {
	if h.broker == nil {
		h.deliver(d)
		return nil
	}
	return h.broker.Publish(ctx, d)
}

// SendTo queues an event for a single connection.
func (h *Hub) SendTo(c *Client, env models.Envelope) bool {
	return c.enqueue(env)
}

func (h *Hub) deliver(d Delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[d.Room] {
		if d.ExceptUserID != "" && c.UserID == d.ExceptUserID {
			continue
		}
		c.enqueue(d.Envelope)
	}
}
