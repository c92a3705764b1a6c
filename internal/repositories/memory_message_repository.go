package repositories

import (
	"context"
	"sort"
	"sync"

	"roomchat/internal/models"
)

// MemoryMessageRepo keeps messages in process memory. It is selected instead of
// Postgres at startup and never mixed with it.
type MemoryMessageRepo struct {
	mu     sync.RWMutex
	byMID  map[string]*models.Message
	byRoom map[models.Room][]*models.Message // ascending (ts, mid)
}

// NewMemoryMessageRepo constructs an empty MemoryMessageRepo.
func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{
		byMID:  make(map[string]*models.Message),
		byRoom: make(map[models.Room][]*models.Message),
	}
}

func lessMessage(a *models.Message, ts int64, mid string) bool {
	if a.TS != ts {
		return a.TS < ts
	}
	return a.MID < mid
}

// Insert stores msg unless its mid is already known.
func (r *MemoryMessageRepo) Insert(_ context.Context, msg models.Message) (models.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byMID[msg.MID]; ok {
		return existing.Clone(), false, nil
	}
	if msg.Reactions == nil {
		msg.Reactions = models.Reactions{}
	}
	stored := msg.Clone()
	stored.Avatar = ""
	r.byMID[msg.MID] = &stored

	list := r.byRoom[msg.Room]
	idx := sort.Search(len(list), func(i int) bool { return !lessMessage(list[i], msg.TS, msg.MID) })
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = &stored
	r.byRoom[msg.Room] = list

	return stored.Clone(), true, nil
}

// GetByMID retrieves a single message.
func (r *MemoryMessageRepo) GetByMID(_ context.Context, mid string) (models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.byMID[mid]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return msg.Clone(), nil
}

// UpdateReactions runs fn under the write lock.
func (r *MemoryMessageRepo) UpdateReactions(_ context.Context, mid string, fn func(models.Reactions) models.Reactions) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.byMID[mid]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	msg.Reactions = fn(msg.Reactions.Clone())
	return msg.Clone(), nil
}

// ListLatest returns the newest messages of a room.
func (r *MemoryMessageRepo) ListLatest(_ context.Context, room models.Room, limit int) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byRoom[room]
	return newestFirst(list, 0, len(list), limit), nil
}

// ListBefore returns messages strictly older than the cursor.
func (r *MemoryMessageRepo) ListBefore(_ context.Context, room models.Room, before Cursor, limit int) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byRoom[room]
	var end int
	if before.MID == "" {
		end = sort.Search(len(list), func(i int) bool { return list[i].TS >= before.TS })
	} else {
		end = sort.Search(len(list), func(i int) bool { return !lessMessage(list[i], before.TS, before.MID) })
	}
	return newestFirst(list, 0, end, limit), nil
}

// ListAfter returns the newest messages strictly newer than the cursor.
func (r *MemoryMessageRepo) ListAfter(_ context.Context, room models.Room, after Cursor, limit int) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byRoom[room]
	var start int
	if after.MID == "" {
		start = sort.Search(len(list), func(i int) bool { return list[i].TS > after.TS })
	} else {
		start = sort.Search(len(list), func(i int) bool {
			m := list[i]
			return m.TS > after.TS || (m.TS == after.TS && m.MID > after.MID)
		})
	}
	return newestFirst(list, start, len(list), limit), nil
}

// Ping always succeeds.
func (r *MemoryMessageRepo) Ping(context.Context) error {
	return nil
}

// Len reports the number of stored messages.
func (r *MemoryMessageRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byMID)
}

func newestFirst(list []*models.Message, start, end, limit int) []models.Message {
	out := make([]models.Message, 0)
	for i := end - 1; i >= start && len(out) < limit; i-- {
		out = append(out, list[i].Clone())
	}
	return out
}
