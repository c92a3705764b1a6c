package chat

import (
	"context"
	"fmt"

	"roomchat/internal/models"
	"roomchat/internal/repositories"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 100
	// Forward catch-up scans at most sinceScanCap rows and keeps the newest sinceKeep.
	sinceScanCap = 1000
	sinceKeep    = 50
)

// HistoryQuery selects one page of a room. Since and Before are mutually exclusive.
// SinceMID and BeforeMID turn the timestamp cursor into a (ts, mid) cursor.
type HistoryQuery struct {
	Room      string
	Since     *int64
	SinceMID  string
	Before    *int64
	BeforeMID string
	Limit     int
}

// History returns a page ordered oldest to newest.
func (s *Service) History(ctx context.Context, q HistoryQuery) (models.HistoryPage, error) {
	room, err := validateRoom(q.Room)
	if err != nil {
		return models.HistoryPage{}, err
	}
	if q.Since != nil && q.Before != nil {
		return models.HistoryPage{}, invalid("cursor", "since and before are mutually exclusive")
	}
	if q.Limit < 0 {
		return models.HistoryPage{}, invalid("limit", "limit must be positive")
	}
	limit := q.Limit
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if q.SinceMID != "" {
		if err := validateMID("sinceMid", q.SinceMID); err != nil {
			return models.HistoryPage{}, err
		}
	}
	if q.BeforeMID != "" {
		if err := validateMID("beforeMid", q.BeforeMID); err != nil {
			return models.HistoryPage{}, err
		}
	}

	var (
		newestFirst []models.Message
		hasMore     bool
	)
	switch {
	case q.Since != nil:
		scanned, err := s.messages.ListAfter(ctx, room, repositories.Cursor{TS: *q.Since, MID: q.SinceMID}, sinceScanCap)
		if err != nil {
			return models.HistoryPage{}, fmt.Errorf("list messages after cursor: %w", err)
		}
		newestFirst = scanned
		if len(newestFirst) > sinceKeep {
			newestFirst = newestFirst[:sinceKeep]
		}
		hasMore = len(scanned) > len(newestFirst)
	case q.Before != nil:
		newestFirst, err = s.messages.ListBefore(ctx, room, repositories.Cursor{TS: *q.Before, MID: q.BeforeMID}, limit)
		if err != nil {
			return models.HistoryPage{}, fmt.Errorf("list messages before cursor: %w", err)
		}
		hasMore = len(newestFirst) == limit
	default:
		newestFirst, err = s.messages.ListLatest(ctx, room, limit+1)
		if err != nil {
			return models.HistoryPage{}, fmt.Errorf("list latest messages: %w", err)
		}
		if len(newestFirst) > limit {
			newestFirst = newestFirst[:limit]
			hasMore = true
		}
	}

	return s.page(ctx, newestFirst, hasMore), nil
}

func (s *Service) page(ctx context.Context, newestFirst []models.Message, hasMore bool) models.HistoryPage {
	avatars := make(map[string]string)
	msgs := make([]models.Message, len(newestFirst))
	for i, m := range newestFirst {
		avatar, ok := avatars[m.UserID]
		if !ok {
			avatar = s.profile(ctx, m.UserID).Avatar
			avatars[m.UserID] = avatar
		}
		m.Avatar = avatar
		msgs[len(newestFirst)-1-i] = m
	}

	page := models.HistoryPage{Messages: msgs, HasMore: hasMore}
	if len(msgs) > 0 {
		oldest, newest := msgs[0], msgs[len(msgs)-1]
		page.OldestTimestamp = &oldest.TS
		page.OldestMID = oldest.MID
		page.NewestTimestamp = &newest.TS
		page.NewestMID = newest.MID
	}
	return page
}
