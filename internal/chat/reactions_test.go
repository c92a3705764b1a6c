package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/models"
)

func TestToggleReactionIsSelfInverse(t *testing.T) {
	h := newHarness(t, "")
	h.send(t, models.RoomWeekday, "m1", "hi")
	ctx := context.Background()

	on, err := h.svc.ToggleReaction(ctx, "m1", "user-bob", "👍")
	require.NoError(t, err)
	assert.Equal(t, models.Reactions{"👍": {"user-bob"}}, on.Reactions)

	off, err := h.svc.ToggleReaction(ctx, "m1", "user-bob", "👍")
	require.NoError(t, err)
	assert.Equal(t, models.Reactions{"👍": {}}, off.Reactions)

	updates := h.bcast.ofType(models.EventReactionUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, models.RoomWeekday, updates[1].room)
	payload, ok := updates[1].event.Data.(models.Message)
	require.True(t, ok, "reaction-update carries the full message")
	assert.Equal(t, "m1", payload.MID)
	assert.Equal(t, "hi", payload.Text)
	assert.Equal(t, models.KindText, payload.Kind)
	assert.NotZero(t, payload.TS)
	assert.Equal(t, models.Reactions{"👍": {}}, payload.Reactions)
}

func TestToggleReactionKeepsInsertionOrder(t *testing.T) {
	h := newHarness(t, "")
	h.send(t, models.RoomAll, "m1", "hi")
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u3"} {
		_, err := h.svc.ToggleReaction(ctx, "m1", u, "🔥")
		require.NoError(t, err)
	}
	msg, err := h.svc.ToggleReaction(ctx, "m1", "u2", "🔥")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, msg.Reactions["🔥"])
}

func TestToggleReactionConcurrentUsers(t *testing.T) {
	h := newHarness(t, "")
	h.send(t, models.RoomAll, "m1", "hi")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.ToggleReaction(context.Background(), "m1", fmt.Sprintf("u%d", i), "❤️")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msg, err := h.svc.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Len(t, msg.Reactions["❤️"], 40)
}

func TestToggleReactionErrors(t *testing.T) {
	h := newHarness(t, "")
	h.send(t, models.RoomAll, "m1", "hi")
	ctx := context.Background()

	_, err := h.svc.ToggleReaction(ctx, "missing", "u1", "👍")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.svc.ToggleReaction(ctx, "m1", "u1", "  ")
	ve, ok := IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "emoji", ve.Field)

	_, err = h.svc.ToggleReaction(ctx, "m1", "u1", "👍👍👍👍👍👍👍👍👍")
	ve, ok = IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "emoji", ve.Field)

	_, err = h.svc.ToggleReaction(ctx, "m1", "", "👍")
	ve, ok = IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "userId", ve.Field)

	assert.Empty(t, h.bcast.ofType(models.EventReactionUpdate))
}
