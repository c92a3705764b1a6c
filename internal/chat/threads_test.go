package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/config"
	"roomchat/internal/models"
)

func reply(t *testing.T, h *harness, room models.Room, mid, parent string) (models.Message, error) {
	t.Helper()
	return h.svc.Create(context.Background(), CreateInput{Room: string(room), UserID: "user-alice", Text: "re: " + parent, MID: mid, ReplyTo: parent})
}

func TestReplyChainFlattensToRoot(t *testing.T) {
	h := newHarness(t, "")
	h.send(t, models.RoomAll, "A", "root message")

	b, err := reply(t, h, models.RoomAll, "B", "A")
	require.NoError(t, err)
	c, err := reply(t, h, models.RoomAll, "C", "B")
	require.NoError(t, err)

	require.True(t, b.IsReply())
	assert.Equal(t, "A", *b.ReplyTo)
	assert.Equal(t, "A", *b.Thread)
	assert.Equal(t, "alice", *b.ReplyToNickname)
	assert.Equal(t, "root message", *b.ReplyToText)

	assert.Equal(t, "B", *c.ReplyTo)
	assert.Equal(t, "A", *c.Thread)
	assert.Equal(t, "re: A", *c.ReplyToText)
}

func TestReplySnapshotIsFixedAtSendTime(t *testing.T) {
	h := newHarness(t, "")
	h.send(t, models.RoomAll, "A", "original")
	_, err := reply(t, h, models.RoomAll, "B", "A")
	require.NoError(t, err)

	h.users.Put(models.Profile{UserID: "user-alice", Nickname: "renamed"})
	_, err = h.svc.ToggleReaction(context.Background(), "A", "user-bob", "👍")
	require.NoError(t, err)

	b, err := h.svc.Get(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, "alice", *b.ReplyToNickname)
	assert.Equal(t, "original", *b.ReplyToText)
}

func TestReplyToImageUsesMediaPreview(t *testing.T) {
	h := newHarness(t, "")
	_, err := h.svc.CreateImage(context.Background(), ImageInput{Room: "all", UserID: "user-alice", MID: "img", MediaURL: "/uploads/x.png", Mime: "image/png"})
	require.NoError(t, err)

	r, err := reply(t, h, models.RoomAll, "R", "img")
	require.NoError(t, err)
	assert.Equal(t, "media", *r.ReplyToText)
}

func TestOrphanReplyDemotedByDefault(t *testing.T) {
	h := newHarness(t, config.OrphanReplyDemote)

	msg, err := reply(t, h, models.RoomAll, "B", "missing")
	require.NoError(t, err)
	assert.False(t, msg.IsReply())
	assert.Nil(t, msg.Thread)
	assert.Nil(t, msg.ReplyToText)
	assert.Equal(t, 1, h.repo.Len())
}

func TestOrphanReplyRejected(t *testing.T) {
	h := newHarness(t, config.OrphanReplyReject)

	_, err := reply(t, h, models.RoomAll, "B", "missing")
	ve, ok := IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "replyTo", ve.Field)
	assert.Equal(t, 0, h.repo.Len())
	assert.Empty(t, h.bcast.ofType(models.EventNewMessage))
}

func TestReplyAcrossRoomsIsOrphaned(t *testing.T) {
	h := newHarness(t, config.OrphanReplyReject)
	h.send(t, models.RoomWeekday, "A", "weekday only")

	_, err := reply(t, h, models.RoomWeekend, "B", "A")
	ve, ok := IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "replyTo", ve.Field)
}
