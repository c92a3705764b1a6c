package models

import "time"

// PresenceEntry is the live record of one connected user.
type PresenceEntry struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	Nickname     string    `json:"nickname"`
	Avatar       string    `json:"avatar"`
	Status       string    `json:"status"`
	WorkStatus   string    `json:"workStatus"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// PresencePatch carries a profile change; nil fields are left untouched.
type PresencePatch struct {
	Nickname   *string `json:"nickname,omitempty"`
	Avatar     *string `json:"avatar,omitempty"`
	Status     *string `json:"status,omitempty"`
	WorkStatus *string `json:"workStatus,omitempty"`
}

// Apply returns e with the non-nil patch fields applied.
func (p PresencePatch) Apply(e PresenceEntry) PresenceEntry {
	if p.Nickname != nil {
		e.Nickname = *p.Nickname
	}
	if p.Avatar != nil {
		e.Avatar = *p.Avatar
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.WorkStatus != nil {
		e.WorkStatus = *p.WorkStatus
	}
	return e
}

// Empty reports whether the patch changes nothing.
func (p PresencePatch) Empty() bool {
	return p.Nickname == nil && p.Avatar == nil && p.Status == nil && p.WorkStatus == nil
}
