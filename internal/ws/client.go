package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roomchat/internal/models"
	"roomchat/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// EventHandler receives decoded inbound events of a client.
type EventHandler interface {
	HandleEvent(c *Client, event models.InboundEvent)
}

// Client is one websocket connection. Outbound events go through a bounded
// queue; a full queue drops the event for this client only.
type Client struct {
	ID   string
	Info ConnInfo

	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	mu            sync.Mutex
	sid           string
	userID        string
	room          models.Room
	lastHeartbeat time.Time
	evicted       bool
}

// NewClient wraps conn. conn may be nil for connections driven only through the queue.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	if info.ConnID == "" {
		info.ConnID = newConnID()
	}
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = time.Now()
	}
	return &Client{
		ID:            info.ConnID,
		Info:          info,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		done:          make(chan struct{}),
		lastHeartbeat: info.ConnectedAt,
	}
}

func (c *Client) SID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sid
}

func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) Room() models.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) setSID(sid string) {
	c.mu.Lock()
	c.sid = sid
	c.mu.Unlock()
}

func (c *Client) setUserID(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

func (c *Client) setRoom(room models.Room) {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
}

func (c *Client) touch(at time.Time) {
	c.mu.Lock()
	c.lastHeartbeat = at
	c.mu.Unlock()
}

func (c *Client) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

func (c *Client) markEvicted() {
	c.mu.Lock()
	c.evicted = true
	c.mu.Unlock()
}

func (c *Client) wasEvicted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evicted
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close stops the pumps; WritePump then sends a close frame and releases the
// transport. It is safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue queues payload without blocking.
func (c *Client) enqueue(payload []byte, eventType models.EventType) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		observability.IncBroadcastDropped(string(eventType))
		slog.Debug("client queue full, dropping event", "conn_id", c.ID, "event", eventType)
		return false
	}
}

// Send marshals and queues event.
func (c *Client) Send(event models.Event) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal event failed", "event", event.Type, "error", err)
		return false
	}
	return c.enqueue(payload, event.Type)
}

// SendError reports a non-fatal error to the client.
func (c *Client) SendError(field, message string) {
	c.Send(models.Event{Type: models.EventError, Data: models.ErrorPayload{Message: message, Field: field}})
}

// ReadPump decodes inbound events until the transport fails and returns that failure.
func (c *Client) ReadPump(handler EventHandler) error {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "conn_id", c.ID, "error", err)
			}
			return err
		}

		var event models.InboundEvent
		if err := json.Unmarshal(raw, &event); err != nil || event.Type == "" {
			c.SendError("type", "malformed event")
			continue
		}
		handler.HandleEvent(c, event)
	}
}

// WritePump drains the send queue and keeps the transport alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			for len(c.send) > 0 {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
