package chat

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"roomchat/internal/models"
	"roomchat/internal/observability"
	"roomchat/internal/repositories"
)

// ToggleReaction adds userID under emoji on mid, or removes it when already present.
func (s *Service) ToggleReaction(ctx context.Context, mid, userID, emoji string) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.toggle_reaction", trace.WithAttributes(attribute.String("chat.mid", mid)))
	defer span.End()

	if err := validateMID("mid", mid); err != nil {
		return models.Message{}, err
	}
	if err := validateUserID(userID); err != nil {
		return models.Message{}, err
	}
	emoji, err := sanitizeEmoji(emoji)
	if err != nil {
		return models.Message{}, err
	}

	current, err := s.messages.GetByMID(ctx, mid)
	if err != nil {
		return models.Message{}, s.lookupError(err)
	}

	state := s.rooms[current.Room]
	state.mu.Lock()
	defer state.mu.Unlock()

	updated, err := s.messages.UpdateReactions(ctx, mid, func(r models.Reactions) models.Reactions {
		if r == nil {
			r = models.Reactions{}
		}
		r.Toggle(emoji, userID)
		return r
	})
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return models.Message{}, s.lookupError(err)
		}
		return models.Message{}, fmt.Errorf("toggle reaction on %s: %w", mid, err)
	}
	updated = s.withAvatar(ctx, updated)

	observability.IncReactionToggled(string(updated.Room))
	s.broadcaster.BroadcastToRoom(ctx, updated.Room, models.Event{Type: models.EventReactionUpdate, Data: updated})
	return updated, nil
}
