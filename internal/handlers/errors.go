package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"roomchat/internal/chat"
)

// writeError maps service errors onto HTTP responses.
func writeError(c *gin.Context, err error, production bool) {
	if ve, ok := chat.IsValidation(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message, "field": ve.Field})
		return
	}
	if errors.Is(err, chat.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	slog.ErrorContext(c.Request.Context(), "request failed",
		"request_id", requestIDFromContext(c),
		"method", c.Request.Method,
		"route", c.FullPath(),
		"error", err,
	)
	message := err.Error()
	if production {
		message = "internal server error"
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}

// requestFields maps request struct fields to their wire names.
var requestFields = map[string]string{
	"Room":         "room",
	"UserID":       "userId",
	"MID":          "mid",
	"Emoji":        "emoji",
	"MediaPayload": "mediaPayload",
	"MimeType":     "mimeType",
}

// bindError describes a request that failed gin binding.
func bindError(err error) gin.H {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		field := fieldErrs[0].Field()
		if name, ok := requestFields[field]; ok {
			field = name
		}
		return gin.H{"error": field + " is required", "field": field}
	}
	return gin.H{"error": "invalid request payload"}
}
