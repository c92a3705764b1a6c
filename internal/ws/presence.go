package ws

import (
	"sort"
	"sync"

	"roomchat/internal/models"
)

// Presence tracks logged-in connections. It holds at most one entry per user.
type Presence struct {
	mu     sync.RWMutex
	byConn map[string]models.PresenceEntry
	byUser map[string]string
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{
		byConn: make(map[string]models.PresenceEntry),
		byUser: make(map[string]string),
	}
}

// AddUser records entry under connID. An entry of the same user on another
// connection is displaced and returned.
func (p *Presence) AddUser(connID string, entry models.PresenceEntry) (models.PresenceEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry.ConnectionID = connID
	if prev, ok := p.byConn[connID]; ok && prev.UserID != entry.UserID {
		delete(p.byUser, prev.UserID)
	}

	var displaced models.PresenceEntry
	var found bool
	if other, ok := p.byUser[entry.UserID]; ok && other != connID {
		displaced, found = p.byConn[other]
		delete(p.byConn, other)
	}

	p.byConn[connID] = entry
	p.byUser[entry.UserID] = connID
	return displaced, found
}

// RemoveUser drops the entry of connID. Removing an unknown connection is a no-op.
func (p *Presence) RemoveUser(connID string) (models.PresenceEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.byConn[connID]
	if !ok {
		return models.PresenceEntry{}, false
	}
	delete(p.byConn, connID)
	if p.byUser[entry.UserID] == connID {
		delete(p.byUser, entry.UserID)
	}
	return entry, true
}

// UpdateUser applies patch to the entry of connID.
func (p *Presence) UpdateUser(connID string, patch models.PresencePatch) (models.PresenceEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.byConn[connID]
	if !ok {
		return models.PresenceEntry{}, false
	}
	entry = patch.Apply(entry)
	p.byConn[connID] = entry
	return entry, true
}

// Get returns the entry of connID.
func (p *Presence) Get(connID string) (models.PresenceEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.byConn[connID]
	return entry, ok
}

// FindByUserID returns the live entry of userID.
func (p *Presence) FindByUserID(userID string) (models.PresenceEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	connID, ok := p.byUser[userID]
	if !ok {
		return models.PresenceEntry{}, false
	}
	entry, ok := p.byConn[connID]
	return entry, ok
}

// ListAll returns every entry ordered by connection time.
func (p *Presence) ListAll() []models.PresenceEntry {
	p.mu.RLock()
	out := make([]models.PresenceEntry, 0, len(p.byConn))
	for _, e := range p.byConn {
		out = append(out, e)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Count returns the number of logged-in connections.
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byConn)
}
