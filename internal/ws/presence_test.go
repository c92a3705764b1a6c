package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/models"
)

func TestPresenceAddFindRemove(t *testing.T) {
	p := NewPresence()
	now := time.Now()

	_, displaced := p.AddUser("c1", models.PresenceEntry{UserID: "u1", Nickname: "kim", ConnectedAt: now})
	assert.False(t, displaced)
	p.AddUser("c2", models.PresenceEntry{UserID: "u2", ConnectedAt: now.Add(time.Second)})

	entry, ok := p.FindByUserID("u1")
	require.True(t, ok)
	assert.Equal(t, "c1", entry.ConnectionID)
	assert.Equal(t, 2, p.Count())

	list := p.ListAll()
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].UserID)

	removed, ok := p.RemoveUser("c1")
	require.True(t, ok)
	assert.Equal(t, "kim", removed.Nickname)
	_, ok = p.RemoveUser("c1")
	assert.False(t, ok)
	_, ok = p.FindByUserID("u1")
	assert.False(t, ok)
}

func TestPresenceKeepsOneEntryPerUser(t *testing.T) {
	p := NewPresence()
	p.AddUser("old", models.PresenceEntry{UserID: "u1"})

	prev, displaced := p.AddUser("new", models.PresenceEntry{UserID: "u1"})
	require.True(t, displaced)
	assert.Equal(t, "old", prev.ConnectionID)
	assert.Equal(t, 1, p.Count())

	entry, ok := p.FindByUserID("u1")
	require.True(t, ok)
	assert.Equal(t, "new", entry.ConnectionID)

	_, ok = p.RemoveUser("old")
	assert.False(t, ok)
}

func TestPresenceUpdateUser(t *testing.T) {
	p := NewPresence()
	p.AddUser("c1", models.PresenceEntry{UserID: "u1", Nickname: "kim", Status: "hi"})

	nick, work := "lee", "on shift"
	entry, ok := p.UpdateUser("c1", models.PresencePatch{Nickname: &nick, WorkStatus: &work})
	require.True(t, ok)
	assert.Equal(t, "lee", entry.Nickname)
	assert.Equal(t, "hi", entry.Status)
	assert.Equal(t, "on shift", entry.WorkStatus)

	_, ok = p.UpdateUser("missing", models.PresencePatch{Nickname: &nick})
	assert.False(t, ok)
}
