package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Kind discriminates message content.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Message represents a chat message in a room.
type Message struct {
	MID      string `db:"mid" json:"mid"`
	Room     Room   `db:"room" json:"room"`
	UserID   string `db:"user_id" json:"userId"`
	Nickname string `db:"nickname" json:"nickname"`
	TS       int64  `db:"ts" json:"ts"`
	Kind     Kind   `db:"kind" json:"kind"`
	Text     string `db:"text" json:"text"`

	MediaURL string `db:"media_url" json:"mediaUrl,omitempty"`
	Mime     string `db:"mime" json:"mime,omitempty"`
	FileName string `db:"file_name" json:"fileName,omitempty"`

	Reactions Reactions `db:"reactions" json:"reactions"`

	ReplyTo         *string `db:"reply_to" json:"replyTo,omitempty"`
	Thread          *string `db:"thread" json:"thread,omitempty"`
	ReplyToNickname *string `db:"reply_to_nickname" json:"replyToNickname,omitempty"`
	ReplyToText     *string `db:"reply_to_text" json:"replyToText,omitempty"`

	// Avatar is merged from the sender's current profile on read; it is not stored.
	Avatar string `db:"-" json:"avatar"`
}

// IsReply reports whether the message carries resolved reply metadata.
func (m Message) IsReply() bool {
	return m.ReplyTo != nil && *m.ReplyTo != ""
}

// Preview is the short text used for reply snapshots and notifications.
func (m Message) Preview() string {
	if m.Text != "" {
		return m.Text
	}
	return "media"
}

// Clone returns a copy whose reactions map can be mutated independently.
func (m Message) Clone() Message {
	m.Reactions = m.Reactions.Clone()
	return m
}

// Reactions maps an emoji to the ordered list of users who reacted with it.
type Reactions map[string][]string

// Toggle adds userID under emoji, or removes it when already present.
// It reports whether the user is now present. An emptied emoji keeps its key.
func (r Reactions) Toggle(emoji, userID string) bool {
	users := r[emoji]
	for i, id := range users {
		if id == userID {
			next := make([]string, 0, len(users)-1)
			next = append(next, users[:i]...)
			next = append(next, users[i+1:]...)
			r[emoji] = next
			return false
		}
	}
	r[emoji] = append(append(make([]string, 0, len(users)+1), users...), userID)
	return true
}

// Clone deep-copies the map.
func (r Reactions) Clone() Reactions {
	out := make(Reactions, len(r))
	for emoji, users := range r {
		out[emoji] = append([]string{}, users...)
	}
	return out
}

// Value stores reactions as JSONB.
func (r Reactions) Value() (driver.Value, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

// Scan reads reactions from a JSONB column.
func (r *Reactions) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = Reactions{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("reactions: unsupported column type")
	}
	out := Reactions{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*r = out
	return nil
}

// Profile is the collaborator view of a user used at send time.
type Profile struct {
	UserID   string `db:"id" json:"id"`
	Nickname string `db:"nickname" json:"nickname"`
	Avatar   string `db:"avatar" json:"avatar"`
	Status   string `db:"status" json:"status"`
}

// FallbackNickname is used for senders without a stored profile.
func FallbackNickname(userID string) string {
	if len(userID) > 5 {
		return "User-" + userID[len(userID)-5:]
	}
	return "User-" + userID
}

// HistoryPage is one window of room history, ordered oldest to newest.
type HistoryPage struct {
	Messages        []Message `json:"messages"`
	HasMore         bool      `json:"hasMore"`
	OldestTimestamp *int64    `json:"oldestTimestamp"`
	OldestMID       string    `json:"oldestMid,omitempty"`
	NewestTimestamp *int64    `json:"newestTimestamp"`
	NewestMID       string    `json:"newestMid,omitempty"`
}
