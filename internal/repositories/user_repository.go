package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"

	"roomchat/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads the profile fields owned by the identity service.
type UserRepository interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// UserRepo is a sqlx-backed UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetProfile fetches the nickname, avatar and status of a user.
func (r *UserRepo) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	var p models.Profile
	err := r.db.GetContext(ctx, &p, `SELECT id, COALESCE(nickname, '') AS nickname, COALESCE(avatar, '') AS avatar, COALESCE(status, '') AS status FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrUserNotFound
	}
	return p, err
}

// ListUserIDs returns every known user id.
func (r *UserRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM users ORDER BY id`)
	return ids, err
}

// MemoryUserRepo is an in-process UserRepository used with the memory store and in tests.
type MemoryUserRepo struct {
	mu       sync.RWMutex
	profiles map[string]models.Profile
}

// NewMemoryUserRepo constructs a MemoryUserRepo seeded with profiles.
func NewMemoryUserRepo(profiles ...models.Profile) *MemoryUserRepo {
	r := &MemoryUserRepo{profiles: make(map[string]models.Profile)}
	for _, p := range profiles {
		r.profiles[p.UserID] = p
	}
	return r
}

// Put inserts or replaces a profile.
func (r *MemoryUserRepo) Put(p models.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.UserID] = p
}

// GetProfile returns a stored profile.
func (r *MemoryUserRepo) GetProfile(_ context.Context, userID string) (models.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	if !ok {
		return models.Profile{}, ErrUserNotFound
	}
	return p, nil
}

// ListUserIDs returns every stored user id, sorted.
func (r *MemoryUserRepo) ListUserIDs(context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
