package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"roomchat/internal/config"
	"roomchat/internal/models"
	"roomchat/internal/observability"
	"roomchat/internal/repositories"
)

// link resolves parentMID and copies the reply snapshot onto msg.
// Replies inherit the parent's thread root, so threads stay one level deep.
// A parent in another room is treated as missing.
func (s *Service) link(ctx context.Context, msg *models.Message, parentMID string) error {
	if err := validateMID("replyTo", parentMID); err != nil {
		return err
	}

	parent, err := s.messages.GetByMID(ctx, parentMID)
	if err != nil && !errors.Is(err, repositories.ErrMessageNotFound) {
		return fmt.Errorf("lookup reply target %s: %w", parentMID, err)
	}
	if err != nil || parent.Room != msg.Room {
		return s.orphan(ctx, msg, parentMID)
	}

	root := parent.MID
	if parent.Thread != nil && *parent.Thread != "" {
		root = *parent.Thread
	}
	replyTo := parent.MID
	nickname := parent.Nickname
	preview := parent.Preview()

	msg.ReplyTo = &replyTo
	msg.Thread = &root
	msg.ReplyToNickname = &nickname
	msg.ReplyToText = &preview
	return nil
}

func (s *Service) orphan(ctx context.Context, msg *models.Message, parentMID string) error {
	observability.IncOrphanReply(s.orphanPolicy)
	if s.orphanPolicy == config.OrphanReplyReject {
		return invalid("replyTo", "reply target not found")
	}
	slog.WarnContext(ctx, "reply target not found, storing as top-level message",
		"mid", msg.MID, "reply_to", parentMID, "room", msg.Room)
	msg.ReplyTo = nil
	msg.Thread = nil
	msg.ReplyToNickname = nil
	msg.ReplyToText = nil
	return nil
}
