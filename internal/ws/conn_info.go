package ws

import "time"

// ConnInfo is captured at handshake and attached to connection events.
type ConnInfo struct {
	ConnID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
