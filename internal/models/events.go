package models

import "encoding/json"

// EventType names a real-time channel event.
type EventType string

// Client to server.
const (
	EventJoinRoom      EventType = "join-room"
	EventLeaveRoom     EventType = "leave-room"
	EventLogin         EventType = "login"
	EventHeartbeat     EventType = "heartbeat"
	EventUpdateProfile EventType = "update-profile"
)

// Server to client.
const (
	EventSession          EventType = "session"
	EventNewMessage       EventType = "new-message"
	EventReactionUpdate   EventType = "reaction-update"
	EventConnectedUsers   EventType = "connected-users"
	EventUserConnected    EventType = "user-connected"
	EventUserDisconnected EventType = "user-disconnected"
	EventUserUpdated      EventType = "user-updated"
	EventHeartbeatAck     EventType = "heartbeat-ack"
	EventError            EventType = "error"
)

// Event is the envelope written to websocket clients.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// InboundEvent is the envelope read from websocket clients.
type InboundEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RoomPayload is the body of join-room and leave-room.
type RoomPayload struct {
	Room string `json:"room"`
}

// LoginPayload is the body of login.
type LoginPayload struct {
	UserID string `json:"userId"`
}

// HeartbeatPayload is the body of heartbeat.
type HeartbeatPayload struct {
	TS int64 `json:"ts"`
}

// HeartbeatAck answers a heartbeat.
type HeartbeatAck struct {
	ServerTime int64 `json:"serverTime"`
	Latency    int64 `json:"latency"`
}

// SessionInfo tells a client which session id to present when reconnecting.
type SessionInfo struct {
	SID     string `json:"sid"`
	Resumed bool   `json:"resumed"`
	Room    Room   `json:"room,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

// ConnectedUsers is the full presence list sent after login.
type ConnectedUsers struct {
	Count int             `json:"count"`
	Users []PresenceEntry `json:"users"`
}

// ErrorPayload reports a non-fatal channel error.
type ErrorPayload struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}
