package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/ideavolution/coordinator/internal/logger"
)

// DefaultClientBuffer is the per-connection outbound queue length
const DefaultClientBuffer = 32

// Dispatcher delivers an event to every connection joined to any of rooms
type Dispatcher interface {
	Dispatch(ctx context.Context, rooms []Room, ev Event)
}

// Client is one live connection. Outbound is drained by the connection's
// write loop.
type Client struct {
	ID       string
	Outbound chan []byte

	rooms map[Room]bool
	done  chan struct{}
	once  sync.Once
}

// Done is closed when the client is removed from the hub
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Hub is the in-process connection registry: room -> set of clients
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[Room]map[*Client]bool
	clients       map[*Client]bool
	buffer        int
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[Room]map[*Client]bool),
		clients:       make(map[*Client]bool),
		buffer:        DefaultClientBuffer,
	}
}

// NewClient registers a connection with no rooms
func (h *Hub) NewClient() *Client {
	c := &Client{
		ID:       uuid.NewString(),
		Outbound: make(chan []byte, h.buffer),
		rooms:    make(map[Room]bool),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

// Join subscribes c to room. It reports false if c was already joined.
func (h *Hub) Join(c *Client, room Room) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] || c.rooms[room] {
		return false
	}
	c.rooms[room] = true
	members, ok := h.subscriptions[room]
	if !ok {
		members = make(map[*Client]bool)
		h.subscriptions[room] = members
	}
	members[c] = true
	return true
}

// Leave unsubscribes c from room. It reports false if c was not joined.
func (h *Hub) Leave(c *Client, room Room) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !c.rooms[room] {
		return false
	}
	delete(c.rooms, room)
	h.unsubscribe(c, room)
	return true
}

// RemoveClient drops c from every room and closes its Done channel
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	for room := range c.rooms {
		h.unsubscribe(c, room)
	}
	c.rooms = make(map[Room]bool)
	delete(h.clients, c)
	h.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

func (h *Hub) unsubscribe(c *Client, room Room) {
	if members, ok := h.subscriptions[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.subscriptions, room)
		}
	}
}

// Rooms returns the rooms c is joined to
func (h *Hub) Rooms(c *Client) []Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Room, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

// RoomSize returns the number of clients joined to room
func (h *Hub) RoomSize(room Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[room])
}

// Send queues an event for a single client without blocking
func (h *Hub) Send(c *Client, ev Event) bool {
	raw, err := json.Marshal(ev)
	if err != nil {
		logger.Logger().Warnw("Failed to encode event", "event", ev.Event, "error", err)
		return false
	}
	return h.enqueue(c, raw)
}

func (h *Hub) enqueue(c *Client, raw []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Outbound <- raw:
		return true
	default:
		return false
	}
}

// Deliver sends ev to the union of the rooms' members, once per client, and
// returns how many clients it was queued for. Full queues drop the event.
func (h *Hub) Deliver(ctx context.Context, rooms []Room, ev Event) int {
	raw, err := json.Marshal(ev)
	if err != nil {
		logger.WarnKV(ctx, "Failed to encode event", "event", ev.Event, "error", err)
		return 0
	}
	return h.DeliverRaw(ctx, rooms, raw)
}

// DeliverRaw is Deliver for an already encoded event
func (h *Hub) DeliverRaw(ctx context.Context, rooms []Room, raw []byte) int {
	h.mu.RLock()
	targets := make(map[*Client]bool)
	for _, room := range rooms {
		for c := range h.subscriptions[room] {
			targets[c] = true
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for c := range targets {
		if h.enqueue(c, raw) {
			delivered++
		} else {
			logger.WarnKV(ctx, "Dropping event; client queue full or closed", "client_id", c.ID, "rooms", rooms)
		}
	}
	return delivered
}

// Dispatch implements Dispatcher
func (h *Hub) Dispatch(ctx context.Context, rooms []Room, ev Event) {
	h.Deliver(ctx, rooms, ev)
}
