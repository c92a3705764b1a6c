package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"roomchat/internal/observability"
)

const wsRoutingKey = "ws_events.rooms"

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// publishWSEvent reports a connection lifecycle event on the event bus.
func publishWSEvent(ctx context.Context, c *Client, event, reason string) {
	info := c.Info
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "room",
			"room":        string(c.Room()),
			"event":       event,
			"conn_id":     info.ConnID,
			"sid":         c.SID(),
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   c.UserID(),
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent("room", event)
}
