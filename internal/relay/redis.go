package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"roomchat/internal/models"
	"roomchat/internal/observability"
)

// DefaultChannel is the pub/sub channel shared by every instance.
const DefaultChannel = "roomchat.rooms"

// DeliverFunc hands a relayed room event to the local hub.
type DeliverFunc func(room models.Room, eventType models.EventType, payload []byte) int

// envelope is the wire form on the pub/sub channel.
type envelope struct {
	Origin  string           `json:"origin"`
	Room    models.Room      `json:"room"`
	Type    models.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

// Redis relays room events between instances over one pub/sub channel.
// Each instance skips its own publications; local delivery already happened.
type Redis struct {
	client   *redis.Client
	channel  string
	instance string
}

// NewRedis connects to addr and verifies the server answers.
func NewRedis(ctx context.Context, addr, channel string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel, instance: uuid.NewString()}, nil
}

// Publish sends a marshaled room event to the other instances.
func (r *Redis) Publish(ctx context.Context, room models.Room, payload []byte) error {
	body, err := encode(r.instance, room, payload)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, body).Err()
}

// Run subscribes and delivers remote events until ctx is done.
func (r *Redis) Run(ctx context.Context, deliver DeliverFunc) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	slog.Info("room relay subscribed", "channel", r.channel, "instance", r.instance)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env, remote, err := decode(r.instance, msg.Payload)
			if err != nil {
				observability.IncRelayError()
				slog.Warn("dropping malformed relay message", "error", err)
				continue
			}
			if remote {
				deliver(env.Room, env.Type, env.Payload)
			}
		}
	}
}

// Ping reports whether redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func encode(instance string, room models.Room, payload []byte) ([]byte, error) {
	var head struct {
		Type models.EventType `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, fmt.Errorf("relay payload: %w", err)
	}
	return json.Marshal(envelope{Origin: instance, Room: room, Type: head.Type, Payload: payload})
}

// decode parses a channel message and reports whether it came from another instance.
func decode(instance, raw string) (envelope, bool, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return envelope{}, false, err
	}
	if !env.Room.Valid() {
		return envelope{}, false, fmt.Errorf("unknown room %q", env.Room)
	}
	return env, env.Origin != instance, nil
}
