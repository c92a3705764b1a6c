package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"roomchat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// Cursor is a (ts, mid) boundary. An empty MID compares on the timestamp alone.
type Cursor struct {
	TS  int64
	MID string
}

// MessageRepository is the durable, mid-keyed message ledger.
// List methods return messages newest first.
type MessageRepository interface {
	// Insert stores msg unless its mid already exists. It returns the stored record and
	// whether this call created it.
	Insert(ctx context.Context, msg models.Message) (models.Message, bool, error)
	GetByMID(ctx context.Context, mid string) (models.Message, error)
	// UpdateReactions applies fn to the current reactions of mid atomically.
	UpdateReactions(ctx context.Context, mid string, fn func(models.Reactions) models.Reactions) (models.Message, error)
	ListLatest(ctx context.Context, room models.Room, limit int) ([]models.Message, error)
	ListBefore(ctx context.Context, room models.Room, before Cursor, limit int) ([]models.Message, error)
	ListAfter(ctx context.Context, room models.Room, after Cursor, limit int) ([]models.Message, error)
	Ping(ctx context.Context) error
}

const messageColumns = `mid, room, user_id, nickname, ts, kind, text, media_url, mime, file_name, reactions, reply_to, thread, reply_to_nickname, reply_to_text`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Insert relies on the unique mid index so concurrent retries resolve to one row.
func (r *MessageRepo) Insert(ctx context.Context, msg models.Message) (models.Message, bool, error) {
	if msg.Reactions == nil {
		msg.Reactions = models.Reactions{}
	}
	var stored models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (`+messageColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        ON CONFLICT (mid) DO NOTHING
        RETURNING `+messageColumns,
		msg.MID, msg.Room, msg.UserID, msg.Nickname, msg.TS, msg.Kind, msg.Text,
		msg.MediaURL, msg.Mime, msg.FileName, msg.Reactions,
		msg.ReplyTo, msg.Thread, msg.ReplyToNickname, msg.ReplyToText,
	).StructScan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		existing, getErr := r.GetByMID(ctx, msg.MID)
		return existing, false, getErr
	}
	if err != nil {
		return models.Message{}, false, fmt.Errorf("insert message: %w", err)
	}
	return stored, true, nil
}

// GetByMID retrieves a single message.
func (r *MessageRepo) GetByMID(ctx context.Context, mid string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE mid=$1`, mid)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// UpdateReactions locks the row for the read-modify-write so concurrent toggles never lose updates.
func (r *MessageRepo) UpdateReactions(ctx context.Context, mid string, fn func(models.Reactions) models.Reactions) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE mid=$1 FOR UPDATE`, mid)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	if msg.Reactions == nil {
		msg.Reactions = models.Reactions{}
	}
	msg.Reactions = fn(msg.Reactions)
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET reactions=$1 WHERE mid=$2`, msg.Reactions, mid); err != nil {
		return models.Message{}, fmt.Errorf("update reactions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListLatest returns the newest messages of a room.
func (r *MessageRepo) ListLatest(ctx context.Context, room models.Room, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE room=$1
        ORDER BY ts DESC, mid DESC
        LIMIT $2`, room, limit)
	return msgs, err
}

// ListBefore returns messages strictly older than the cursor.
func (r *MessageRepo) ListBefore(ctx context.Context, room models.Room, before Cursor, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	if before.MID == "" {
		err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE room=$1 AND ts < $2
            ORDER BY ts DESC, mid DESC
            LIMIT $3`, room, before.TS, limit)
		return msgs, err
	}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE room=$1 AND (ts, mid) < ($2, $3)
        ORDER BY ts DESC, mid DESC
        LIMIT $4`, room, before.TS, before.MID, limit)
	return msgs, err
}

// ListAfter returns the newest messages strictly newer than the cursor.
func (r *MessageRepo) ListAfter(ctx context.Context, room models.Room, after Cursor, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	if after.MID == "" {
		err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE room=$1 AND ts > $2
            ORDER BY ts DESC, mid DESC
            LIMIT $3`, room, after.TS, limit)
		return msgs, err
	}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE room=$1 AND (ts, mid) > ($2, $3)
        ORDER BY ts DESC, mid DESC
        LIMIT $4`, room, after.TS, after.MID, limit)
	return msgs, err
}

// Ping checks the database connection.
func (r *MessageRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
