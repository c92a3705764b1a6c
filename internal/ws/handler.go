package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"roomchat/internal/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades GET /ws and runs the connection until it closes.
type Handler struct {
	lifecycle *Lifecycle
}

// NewHandler constructs a Handler.
func NewHandler(lifecycle *Lifecycle) *Handler {
	return &Handler{lifecycle: lifecycle}
}

// Handle upgrades the connection and registers the client.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("roomchat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request.WithContext(ctx), nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)

	// The connection outlives the request.
	connCtx := context.WithoutCancel(ctx)
	h.lifecycle.Connect(connCtx, client, c.Query("sid"))

	observability.IncWSActive("room")
	publishWSEvent(connCtx, client, "ws_connect", "")

	go client.WritePump()
	go func() {
		err := client.ReadPump(h.lifecycle)
		reason := err.Error()
		if client.wasEvicted() {
			reason = "evicted"
		} else if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			publishWSEvent(connCtx, client, "ws_error", reason)
		}
		publishWSEvent(connCtx, client, "ws_disconnect", reason)
		observability.DecWSActive("room")
		h.lifecycle.Disconnect(connCtx, client, reason)
	}()
}
