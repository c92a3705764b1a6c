package notify

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"roomchat/internal/models"
	"roomchat/internal/repositories"
)

// RoutingKey is where push requests are published for the delivery workers.
const RoutingKey = "notifications.push"

const maxBodyRunes = 100

// Publisher is the subset of the event publisher the dispatcher needs.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// PushNotification is one push request. Delivery to devices happens downstream.
type PushNotification struct {
	EventType  string      `json:"event_type"`
	OccurredAt string      `json:"occurred_at"`
	Recipients []string    `json:"recipients"`
	Title      string      `json:"title"`
	Body       string      `json:"body"`
	Sender     string      `json:"sender"`
	SenderID   string      `json:"sender_id"`
	Room       models.Room `json:"room"`
	MID        string      `json:"mid"`
}

// Dispatcher turns stored messages into push requests for every other known user.
type Dispatcher struct {
	publisher Publisher
	users     repositories.UserRepository
	now       func() time.Time
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(publisher Publisher, users repositories.UserRepository) *Dispatcher {
	return &Dispatcher{publisher: publisher, users: users, now: time.Now}
}

// Notify publishes a push request for msg. Nothing is published when the author is the only user.
func (d *Dispatcher) Notify(ctx context.Context, msg models.Message) error {
	ids, err := d.users.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list push recipients: %w", err)
	}

	recipients := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != msg.UserID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return nil
	}

	push := PushNotification{
		EventType:  "push_requested",
		OccurredAt: d.now().UTC().Format(time.RFC3339Nano),
		Recipients: recipients,
		Title:      fmt.Sprintf("[%s] %s", msg.Room, msg.Nickname),
		Body:       body(msg),
		Sender:     msg.Nickname,
		SenderID:   msg.UserID,
		Room:       msg.Room,
		MID:        msg.MID,
	}
	if err := d.publisher.Publish(ctx, RoutingKey, push); err != nil {
		return fmt.Errorf("publish push for %s: %w", msg.MID, err)
	}
	return nil
}

func body(msg models.Message) string {
	if msg.Kind == models.KindImage {
		return "sent a photo"
	}
	text := msg.Text
	if utf8.RuneCountInString(text) > maxBodyRunes {
		text = string([]rune(text)[:maxBodyRunes]) + "…"
	}
	return text
}
