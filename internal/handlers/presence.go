package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roomchat/internal/models"
)

// PresenceLister exposes the online users.
type PresenceLister interface {
	ListAll() []models.PresenceEntry
}

// PresenceHandler serves the online user list over HTTP.
type PresenceHandler struct {
	presence PresenceLister
}

func NewPresenceHandler(presence PresenceLister) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// ListOnline handles GET /api/presence.
func (h *PresenceHandler) ListOnline(c *gin.Context) {
	users := h.presence.ListAll()
	c.JSON(http.StatusOK, models.ConnectedUsers{Count: len(users), Users: users})
}
