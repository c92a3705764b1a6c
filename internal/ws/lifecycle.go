package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"roomchat/internal/models"
	"roomchat/internal/observability"
	"roomchat/internal/repositories"
)

const maxUserIDLen = 128

// LifecycleOptions tune a Lifecycle. Zero values select defaults.
type LifecycleOptions struct {
	ReconnectGrace    time.Duration
	HeartbeatInterval time.Duration
	Now               func() time.Time
}

// Lifecycle drives a connection from handshake to disconnect: session ids,
// login, presence, heartbeats and reconnect grace.
type Lifecycle struct {
	hub      *Hub
	presence *Presence
	users    repositories.UserRepository

	grace             time.Duration
	heartbeatInterval time.Duration
	now               func() time.Time

	// loginMu serializes login so two connections of one user cannot both survive.
	loginMu sync.Mutex

	mu     sync.Mutex
	parked map[string]*parkedSession
}

// parkedSession is what a dropped connection can get back by reconnecting with its sid.
type parkedSession struct {
	userID string
	room   models.Room
	entry  *models.PresenceEntry
	timer  *time.Timer
}

// NewLifecycle wires a Lifecycle.
func NewLifecycle(hub *Hub, presence *Presence, users repositories.UserRepository, opts LifecycleOptions) *Lifecycle {
	if opts.ReconnectGrace <= 0 {
		opts.ReconnectGrace = 2 * time.Minute
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 3 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Lifecycle{
		hub:               hub,
		presence:          presence,
		users:             users,
		grace:             opts.ReconnectGrace,
		heartbeatInterval: opts.HeartbeatInterval,
		now:               opts.Now,
		parked:            make(map[string]*parkedSession),
	}
}

// Connect registers c and assigns its session. A sid parked within the grace
// window restores the previous room and login.
func (l *Lifecycle) Connect(ctx context.Context, c *Client, sid string) {
	l.hub.Register(c)

	session := l.unpark(sid)
	if session == nil {
		c.setSID(uuid.NewString())
		c.Send(models.Event{Type: models.EventSession, Data: models.SessionInfo{SID: c.SID()}})
		return
	}

	c.setSID(sid)
	if session.room != "" {
		l.hub.Join(c, session.room)
	}
	c.Send(models.Event{Type: models.EventSession, Data: models.SessionInfo{
		SID:     sid,
		Resumed: true,
		Room:    session.room,
		UserID:  session.userID,
	}})
	if session.userID != "" {
		l.bind(ctx, c, session.userID, session.entry)
	}
	slog.InfoContext(ctx, "session resumed", "sid", sid, "conn_id", c.ID, "user_id", session.userID, "room", session.room)
}

// HandleEvent dispatches one inbound event. Rejections are reported to the
// client and never close the connection.
func (l *Lifecycle) HandleEvent(c *Client, event models.InboundEvent) {
	ctx := context.Background()
	switch event.Type {
	case models.EventJoinRoom, models.EventLeaveRoom:
		var p models.RoomPayload
		if err := decode(event.Data, &p); err != nil {
			c.SendError("room", "malformed payload")
			return
		}
		room, ok := models.ParseRoom(p.Room)
		if !ok {
			c.SendError("room", "unknown room")
			return
		}
		if event.Type == models.EventJoinRoom {
			l.hub.Join(c, room)
		} else {
			l.hub.Leave(c, room)
		}

	case models.EventLogin:
		var p models.LoginPayload
		if err := decode(event.Data, &p); err != nil || p.UserID == "" || len(p.UserID) > maxUserIDLen {
			c.SendError("userId", "user id is required")
			return
		}
		l.Login(ctx, c, p.UserID)

	case models.EventHeartbeat:
		var p models.HeartbeatPayload
		_ = decode(event.Data, &p)
		l.Heartbeat(c, p.TS)

	case models.EventUpdateProfile:
		var patch models.PresencePatch
		if err := decode(event.Data, &patch); err != nil {
			c.SendError("profile", "malformed payload")
			return
		}
		l.UpdateProfile(c, patch)

	default:
		c.SendError("type", "unknown event")
		return
	}
	observability.IncWSEvent("room", string(event.Type))
}

// Login binds c to userID. Any other live connection of the user is closed first.
func (l *Lifecycle) Login(ctx context.Context, c *Client, userID string) {
	l.bind(ctx, c, userID, nil)
}

func (l *Lifecycle) bind(ctx context.Context, c *Client, userID string, restored *models.PresenceEntry) {
	l.loginMu.Lock()
	defer l.loginMu.Unlock()

	if prev, ok := l.presence.FindByUserID(userID); ok && prev.ConnectionID != c.ID {
		l.evict(prev)
	}
	if current := c.UserID(); current != "" && current != userID {
		if entry, ok := l.presence.RemoveUser(c.ID); ok {
			l.hub.BroadcastAll(models.Event{Type: models.EventUserDisconnected, Data: entry})
		}
	}

	var entry models.PresenceEntry
	if restored != nil {
		entry = *restored
	} else {
		entry = l.profileEntry(ctx, userID)
	}
	entry.UserID = userID
	entry.ConnectedAt = l.now()

	if displaced, ok := l.presence.AddUser(c.ID, entry); ok {
		l.evict(displaced)
	}
	entry.ConnectionID = c.ID
	c.setUserID(userID)
	observability.SetPresenceOnline(l.presence.Count())

	l.hub.BroadcastAll(models.Event{Type: models.EventUserConnected, Data: entry})
	users := l.presence.ListAll()
	c.Send(models.Event{Type: models.EventConnectedUsers, Data: models.ConnectedUsers{Count: len(users), Users: users}})
	slog.InfoContext(ctx, "user logged in", "user_id", userID, "conn_id", c.ID, "online", len(users))
}

// evict closes the connection behind prev without parking its session.
func (l *Lifecycle) evict(prev models.PresenceEntry) {
	l.presence.RemoveUser(prev.ConnectionID)
	l.hub.BroadcastAll(models.Event{Type: models.EventUserDisconnected, Data: prev})
	if old, ok := l.hub.Client(prev.ConnectionID); ok {
		old.markEvicted()
		old.SendError("session", "logged in from another connection")
		old.Close()
	}
	slog.Info("duplicate session evicted", "user_id", prev.UserID, "conn_id", prev.ConnectionID)
}

func (l *Lifecycle) profileEntry(ctx context.Context, userID string) models.PresenceEntry {
	entry := models.PresenceEntry{UserID: userID, Nickname: models.FallbackNickname(userID)}
	p, err := l.users.GetProfile(ctx, userID)
	if err != nil {
		return entry
	}
	if p.Nickname != "" {
		entry.Nickname = p.Nickname
	}
	entry.Avatar = p.Avatar
	entry.Status = p.Status
	return entry
}

// Heartbeat records liveness and acknowledges with the measured latency.
func (l *Lifecycle) Heartbeat(c *Client, clientTS int64) {
	now := l.now()
	c.touch(now)
	ack := models.HeartbeatAck{ServerTime: now.UnixMilli()}
	if clientTS > 0 {
		ack.Latency = now.UnixMilli() - clientTS
	}
	c.Send(models.Event{Type: models.EventHeartbeatAck, Data: ack})
}

// UpdateProfile patches the presence entry of c and announces it to everyone.
func (l *Lifecycle) UpdateProfile(c *Client, patch models.PresencePatch) {
	if c.UserID() == "" {
		c.SendError("userId", "login required")
		return
	}
	if patch.Empty() {
		return
	}
	entry, ok := l.presence.UpdateUser(c.ID, patch)
	if !ok {
		c.SendError("userId", "login required")
		return
	}
	l.hub.BroadcastAll(models.Event{Type: models.EventUserUpdated, Data: entry})
}

// Disconnect removes c from the hub and presence. Unless c was evicted, its
// session is parked for the reconnect grace window.
func (l *Lifecycle) Disconnect(ctx context.Context, c *Client, reason string) {
	room, registered := l.hub.Unregister(c)

	var restored *models.PresenceEntry
	if entry, ok := l.presence.RemoveUser(c.ID); ok {
		restored = &entry
		observability.SetPresenceOnline(l.presence.Count())
		l.hub.BroadcastAll(models.Event{Type: models.EventUserDisconnected, Data: entry})
	}

	userID := c.UserID()
	if !registered || c.wasEvicted() || c.SID() == "" || (userID == "" && room == "") {
		return
	}
	l.park(c.SID(), &parkedSession{userID: userID, room: room, entry: restored})
	slog.InfoContext(ctx, "session parked", "sid", c.SID(), "conn_id", c.ID, "user_id", userID, "room", room, "reason", reason)
}

func (l *Lifecycle) park(sid string, session *parkedSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.parked[sid]; ok {
		old.timer.Stop()
	}
	session.timer = time.AfterFunc(l.grace, func() { l.expire(sid, session) })
	l.parked[sid] = session
}

func (l *Lifecycle) unpark(sid string) *parkedSession {
	if sid == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	session, ok := l.parked[sid]
	if !ok {
		return nil
	}
	session.timer.Stop()
	delete(l.parked, sid)
	return session
}

func (l *Lifecycle) expire(sid string, session *parkedSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.parked[sid] == session {
		delete(l.parked, sid)
		slog.Info("parked session expired", "sid", sid, "user_id", session.userID)
	}
}

// Parked returns the number of sessions waiting for a reconnect.
func (l *Lifecycle) Parked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.parked)
}

// SweepHeartbeats reports logged-in connections silent for more than two intervals.
// It never disconnects; transport pings decide liveness.
func (l *Lifecycle) SweepHeartbeats() int {
	silent := l.silentClients()
	for _, c := range silent {
		observability.IncHeartbeatMissed()
		slog.Warn("heartbeat missed", "conn_id", c.ID, "user_id", c.UserID(), "last_heartbeat", c.LastHeartbeat())
	}
	return len(silent)
}

// MissedHeartbeats counts the connections SweepHeartbeats would report, without
// logging or counting them.
func (l *Lifecycle) MissedHeartbeats() int {
	return len(l.silentClients())
}

func (l *Lifecycle) silentClients() []*Client {
	cutoff := l.now().Add(-2 * l.heartbeatInterval)
	var silent []*Client
	for _, c := range l.hub.Clients() {
		if c.UserID() == "" || !c.LastHeartbeat().Before(cutoff) {
			continue
		}
		silent = append(silent, c)
	}
	return silent
}

// RunHeartbeatSweeper sweeps every heartbeat interval until ctx is done.
func (l *Lifecycle) RunHeartbeatSweeper(ctx context.Context) error {
	ticker := time.NewTicker(l.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.SweepHeartbeats()
		}
	}
}

// Shutdown drops every parked session.
func (l *Lifecycle) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for sid, session := range l.parked {
		session.timer.Stop()
		delete(l.parked, sid)
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
