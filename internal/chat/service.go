package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"roomchat/internal/config"
	"roomchat/internal/models"
	"roomchat/internal/observability"
	"roomchat/internal/repositories"
)

var tracer = otel.Tracer("roomchat/internal/chat")

// Broadcaster fans an event out to every live subscriber of a room.
type Broadcaster interface {
	BroadcastToRoom(ctx context.Context, room models.Room, event models.Event)
}

// Notifier hands a freshly stored message to the push pipeline.
type Notifier interface {
	Notify(ctx context.Context, msg models.Message) error
}

// Options tune a Service. Zero values select defaults.
type Options struct {
	OrphanReplyPolicy string
	NotifyTimeout     time.Duration
	Now               func() time.Time
}

// Service owns message ingestion, reply linking, reactions and history paging.
type Service struct {
	messages    repositories.MessageRepository
	users       repositories.UserRepository
	broadcaster Broadcaster
	notifier    Notifier

	orphanPolicy  string
	notifyTimeout time.Duration
	now           func() time.Time

	rooms   map[models.Room]*roomState
	pending sync.WaitGroup
}

// roomState serializes "store + broadcast" for one room.
type roomState struct {
	mu     sync.Mutex
	lastTS int64
}

// NewService wires a Service. notifier may be nil.
func NewService(messages repositories.MessageRepository, users repositories.UserRepository, broadcaster Broadcaster, notifier Notifier, opts Options) *Service {
	if opts.OrphanReplyPolicy == "" {
		opts.OrphanReplyPolicy = config.OrphanReplyDemote
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	rooms := make(map[models.Room]*roomState, len(models.Rooms))
	for _, r := range models.Rooms {
		rooms[r] = &roomState{}
	}
	return &Service{
		messages:      messages,
		users:         users,
		broadcaster:   broadcaster,
		notifier:      notifier,
		orphanPolicy:  opts.OrphanReplyPolicy,
		notifyTimeout: opts.NotifyTimeout,
		now:           opts.Now,
		rooms:         rooms,
	}
}

// CreateInput is a text message submission.
type CreateInput struct {
	Room    string
	UserID  string
	Text    string
	MID     string
	ReplyTo string
}

// ImageInput is an image message submission. MediaURL references already stored content.
type ImageInput struct {
	Room     string
	UserID   string
	MID      string
	MediaURL string
	Size     int64
	FileName string
	Mime     string
	ReplyTo  string
}

// Create stores a text message, or returns the existing one when the mid was seen before.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.create", trace.WithAttributes(attribute.String("chat.room", in.Room)))
	defer span.End()

	room, err := validateRoom(in.Room)
	if err != nil {
		return models.Message{}, err
	}
	if err := validateUserID(in.UserID); err != nil {
		return models.Message{}, err
	}

	mid := in.MID
	if mid == "" {
		mid = uuid.NewString()
	} else {
		if err := validateMID("mid", mid); err != nil {
			return models.Message{}, err
		}
		if existing, ok, err := s.existing(ctx, mid); err != nil || ok {
			return existing, err
		}
	}

	text, err := sanitizeText(in.Text)
	if err != nil {
		return models.Message{}, err
	}

	return s.ingest(ctx, models.Message{
		MID:    mid,
		Room:   room,
		UserID: in.UserID,
		Kind:   models.KindText,
		Text:   text,
	}, in.ReplyTo)
}

// CreateImage stores an image message. Unlike text, the caller must supply the mid.
func (s *Service) CreateImage(ctx context.Context, in ImageInput) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.create_image", trace.WithAttributes(attribute.String("chat.room", in.Room)))
	defer span.End()

	room, existing, ok, err := s.imageTarget(ctx, in.Room, in.UserID, in.MID)
	if err != nil || ok {
		return existing, err
	}

	if err := validateMediaURL(in.MediaURL); err != nil {
		return models.Message{}, err
	}
	if in.Size > MaxImageBytes {
		return models.Message{}, invalid("mediaPayload", "image exceeds 10MB")
	}
	if !IsImageMime(in.Mime) {
		return models.Message{}, invalid("mimeType", "only image uploads are allowed")
	}

	return s.ingest(ctx, models.Message{
		MID:      in.MID,
		Room:     room,
		UserID:   in.UserID,
		Kind:     models.KindImage,
		MediaURL: in.MediaURL,
		Mime:     in.Mime,
		FileName: sanitizeFileName(in.FileName),
	}, in.ReplyTo)
}

// ExistingImage checks room, userId and mid of an image submission and returns the
// stored message when the mid is already known. Uploads call it before writing any bytes.
func (s *Service) ExistingImage(ctx context.Context, room, userID, mid string) (models.Message, bool, error) {
	_, existing, ok, err := s.imageTarget(ctx, room, userID, mid)
	return existing, ok, err
}

func (s *Service) imageTarget(ctx context.Context, rawRoom, userID, mid string) (models.Room, models.Message, bool, error) {
	room, err := validateRoom(rawRoom)
	if err != nil {
		return "", models.Message{}, false, err
	}
	if err := validateUserID(userID); err != nil {
		return "", models.Message{}, false, err
	}
	if err := validateMID("mid", mid); err != nil {
		return "", models.Message{}, false, err
	}
	existing, ok, err := s.existing(ctx, mid)
	return room, existing, ok, err
}

// Get returns one message with the sender's current avatar.
func (s *Service) Get(ctx context.Context, mid string) (models.Message, error) {
	if err := validateMID("mid", mid); err != nil {
		return models.Message{}, err
	}
	msg, err := s.messages.GetByMID(ctx, mid)
	if err != nil {
		return models.Message{}, s.lookupError(err)
	}
	return s.withAvatar(ctx, msg), nil
}

// Wait blocks until in-flight push dispatches have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// existing reports a previously stored message for mid.
func (s *Service) existing(ctx context.Context, mid string) (models.Message, bool, error) {
	msg, err := s.messages.GetByMID(ctx, mid)
	switch {
	case err == nil:
		observability.IncMessageDeduplicated()
		return s.withAvatar(ctx, msg), true, nil
	case errors.Is(err, repositories.ErrMessageNotFound):
		return models.Message{}, false, nil
	default:
		return models.Message{}, false, fmt.Errorf("lookup message %s: %w", mid, err)
	}
}

// ingest links, stores and broadcasts msg while holding its room lock.
func (s *Service) ingest(ctx context.Context, msg models.Message, replyTo string) (models.Message, error) {
	profile := s.profile(ctx, msg.UserID)
	msg.Nickname = profile.Nickname
	msg.Reactions = models.Reactions{}

	state := s.rooms[msg.Room]
	state.mu.Lock()
	defer state.mu.Unlock()

	if replyTo != "" {
		if err := s.link(ctx, &msg, replyTo); err != nil {
			return models.Message{}, err
		}
	}

	ts := s.now().UnixMilli()
	if ts < state.lastTS {
		ts = state.lastTS
	}
	msg.TS = ts

	stored, created, err := s.messages.Insert(ctx, msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}
	if !created {
		observability.IncMessageDeduplicated()
		return s.withAvatar(ctx, stored), nil
	}
	state.lastTS = stored.TS
	stored.Avatar = profile.Avatar

	observability.IncMessageCreated(string(stored.Room), string(stored.Kind))
	s.broadcaster.BroadcastToRoom(ctx, stored.Room, models.Event{Type: models.EventNewMessage, Data: stored})
	s.dispatchPush(ctx, stored)
	return stored, nil
}

func (s *Service) dispatchPush(ctx context.Context, msg models.Message) {
	if s.notifier == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(pushCtx, msg); err != nil {
			observability.IncPushDispatch("error")
			slog.Warn("push dispatch failed", "mid", msg.MID, "room", msg.Room, "error", err)
			return
		}
		observability.IncPushDispatch("ok")
	}()
}

// profile resolves the sender's nickname and avatar, falling back to a derived nickname.
func (s *Service) profile(ctx context.Context, userID string) models.Profile {
	p, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, repositories.ErrUserNotFound) {
			slog.WarnContext(ctx, "profile lookup failed", "user_id", userID, "error", err)
		}
		return models.Profile{UserID: userID, Nickname: models.FallbackNickname(userID)}
	}
	if p.Nickname == "" {
		p.Nickname = models.FallbackNickname(userID)
	}
	return p
}

func (s *Service) withAvatar(ctx context.Context, msg models.Message) models.Message {
	msg.Avatar = s.profile(ctx, msg.UserID).Avatar
	return msg
}

func (s *Service) lookupError(err error) error {
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
