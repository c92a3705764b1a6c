package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/models"
)

func seed(t *testing.T, repo *MemoryMessageRepo, room models.Room, ts int64, mid string) {
	t.Helper()
	_, created, err := repo.Insert(context.Background(), models.Message{MID: mid, Room: room, TS: ts, Kind: models.KindText, Text: mid})
	require.NoError(t, err)
	require.True(t, created)
}

func mids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.MID)
	}
	return out
}

func TestMemoryInsertIsIdempotentOnMID(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()

	first, created, err := repo.Insert(ctx, models.Message{MID: "m1", Room: models.RoomWeekday, TS: 1, Text: "hello"})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.Insert(ctx, models.Message{MID: "m1", Room: models.RoomWeekday, TS: 2, Text: "ignored"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)
	assert.Equal(t, "hello", second.Text)
	assert.Equal(t, 1, repo.Len())
}

func TestMemoryGetByMIDNotFound(t *testing.T) {
	_, err := NewMemoryMessageRepo().GetByMID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMemoryListOrderingAndCursors(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()
	seed(t, repo, models.RoomAll, 20, "b")
	seed(t, repo, models.RoomAll, 10, "a0")
	seed(t, repo, models.RoomAll, 20, "a")
	seed(t, repo, models.RoomAll, 30, "c")
	seed(t, repo, models.RoomWeekend, 15, "other")

	latest, err := repo.ListLatest(ctx, models.RoomAll, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a", "a0"}, mids(latest))
	assert.Equal(t, []int64{30, 20, 20, 10}, []int64{latest[0].TS, latest[1].TS, latest[2].TS, latest[3].TS})

	before, err := repo.ListBefore(ctx, models.RoomAll, Cursor{TS: 20, MID: "b"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a0"}, mids(before))

	beforeTS, err := repo.ListBefore(ctx, models.RoomAll, Cursor{TS: 20}, 10)
	require.NoError(t, err)
	assert.Len(t, beforeTS, 1)

	after, err := repo.ListAfter(ctx, models.RoomAll, Cursor{TS: 20, MID: "a"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, mids(after))

	afterTS, err := repo.ListAfter(ctx, models.RoomAll, Cursor{TS: 20}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, mids(afterTS))
}

func TestMemoryUpdateReactionsConcurrent(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()
	seed(t, repo, models.RoomWeekday, 1, "m1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.UpdateReactions(ctx, "m1", func(r models.Reactions) models.Reactions {
				r.Toggle("👍", fmt.Sprintf("u%d", i))
				return r
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msg, err := repo.GetByMID(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, msg.Reactions["👍"], 50)
}

func TestMemoryReturnedMessagesAreCopies(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()
	seed(t, repo, models.RoomWeekday, 1, "m1")

	msg, err := repo.GetByMID(ctx, "m1")
	require.NoError(t, err)
	msg.Reactions.Toggle("👍", "u1")

	again, err := repo.GetByMID(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, again.Reactions)
}

func TestMemoryUserRepo(t *testing.T) {
	repo := NewMemoryUserRepo(models.Profile{UserID: "u2", Nickname: "lee"}, models.Profile{UserID: "u1", Nickname: "kim"})
	ctx := context.Background()

	p, err := repo.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "kim", p.Nickname)

	_, err = repo.GetProfile(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	ids, err := repo.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids)
}
