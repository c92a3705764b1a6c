package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"roomchat/internal/models"
	"roomchat/internal/observability"
)

// Relay forwards a marshaled room event to other service instances.
type Relay interface {
	Publish(ctx context.Context, room models.Room, payload []byte) error
}

const (
	relayQueueSize      = 1024
	relayPublishTimeout = 5 * time.Second
)

type relayItem struct {
	ctx       context.Context
	room      models.Room
	eventType models.EventType
	payload   []byte
}

// Hub maintains live connections and their room membership. A connection is
// joined to at most one room.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[models.Room]map[string]*Client

	relay      Relay
	relayQueue chan relayItem
	stop       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub creates an empty hub. relay may be nil for a single instance.
func NewHub(relay Relay) *Hub {
	return newHub(relay, relayQueueSize)
}

func newHub(relay Relay, queueSize int) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[models.Room]map[string]*Client),
		relay:   relay,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if relay == nil {
		close(h.done)
		return h
	}
	h.relayQueue = make(chan relayItem, queueSize)
	go h.runRelay()
	return h
}

// Close stops the relay publisher. Events still queued are discarded.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.stop) })
	<-h.done
}

// runRelay publishes queued events one at a time so each room keeps its order.
func (h *Hub) runRelay() {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			return
		case item := <-h.relayQueue:
			h.publish(item)
		}
	}
}

func (h *Hub) publish(item relayItem) {
	ctx, cancel := context.WithTimeout(item.ctx, relayPublishTimeout)
	defer cancel()
	if err := h.relay.Publish(ctx, item.room, item.payload); err != nil {
		observability.IncRelayError()
		slog.WarnContext(ctx, "relay publish failed", "room", item.room, "event", item.eventType, "error", err)
	}
}

// Register adds a connection.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Unregister removes a connection and leaves its room. It returns the room it
// was in and whether the connection was registered.
func (h *Hub) Unregister(c *Client) (models.Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return "", false
	}
	delete(h.clients, c.ID)
	return h.leaveLocked(c), true
}

// Join subscribes c to room, leaving any previous room first.
func (h *Hub) Join(c *Client, room models.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.Room() == room {
		if _, ok := h.rooms[room][c.ID]; ok {
			return
		}
	}
	h.leaveLocked(c)
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][c.ID] = c
	c.setRoom(room)
}

// Leave unsubscribes c from room. Leaving a room the client is not in is a no-op.
func (h *Hub) Leave(c *Client, room models.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.Room() != room {
		return
	}
	h.leaveLocked(c)
}

func (h *Hub) leaveLocked(c *Client) models.Room {
	room := c.Room()
	if room == "" {
		return ""
	}
	if members, ok := h.rooms[room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	c.setRoom("")
	return room
}

// BroadcastToRoom delivers event to local members of room and queues it for the
// relay without waiting on the publish.
func (h *Hub) BroadcastToRoom(ctx context.Context, room models.Room, event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.ErrorContext(ctx, "marshal room event failed", "room", room, "event", event.Type, "error", err)
		return
	}
	h.DeliverRoom(room, event.Type, payload)

	if h.relay == nil {
		return
	}
	item := relayItem{ctx: context.WithoutCancel(ctx), room: room, eventType: event.Type, payload: payload}
	select {
	case h.relayQueue <- item:
	default:
		observability.IncRelayError()
		slog.WarnContext(ctx, "relay queue full, dropping event", "room", room, "event", event.Type)
	}
}

// DeliverRoom queues an already marshaled event to local members of room.
func (h *Hub) DeliverRoom(room models.Room, eventType models.EventType, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, c := range h.rooms[room] {
		if c.enqueue(payload, eventType) {
			delivered++
		}
	}
	return delivered
}

// BroadcastAll queues event to every local connection regardless of room.
func (h *Hub) BroadcastAll(event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal event failed", "event", event.Type, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.enqueue(payload, event.Type)
	}
}

// Client returns a registered connection.
func (h *Hub) Client(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// Clients returns a snapshot of registered connections.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of local members of room.
func (h *Hub) RoomSize(room models.Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
