package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roomchat/internal/chat"
	"roomchat/internal/media"
	"roomchat/internal/models"
	"roomchat/internal/telemetry"
)

// MessageService is the chat core behind the message endpoints.
type MessageService interface {
	Create(ctx context.Context, in chat.CreateInput) (models.Message, error)
	CreateImage(ctx context.Context, in chat.ImageInput) (models.Message, error)
	ExistingImage(ctx context.Context, room, userID, mid string) (models.Message, bool, error)
	Get(ctx context.Context, mid string) (models.Message, error)
	ToggleReaction(ctx context.Context, mid, userID, emoji string) (models.Message, error)
	History(ctx context.Context, q chat.HistoryQuery) (models.HistoryPage, error)
}

// Uploader persists uploaded image bytes.
type Uploader interface {
	Save(r io.Reader, originalName string) (media.Stored, error)
	Remove(url string) error
}

// MessageHandler serves the message, upload and reaction endpoints.
type MessageHandler struct {
	svc        MessageService
	uploader   Uploader
	audit      *telemetry.AuditEmitter
	production bool
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(svc MessageService, uploader Uploader, audit *telemetry.AuditEmitter, production bool) *MessageHandler {
	return &MessageHandler{svc: svc, uploader: uploader, audit: audit, production: production}
}

// Register mounts the handler's routes.
func (h *MessageHandler) Register(r gin.IRoutes) {
	r.POST("/api/messages", h.CreateMessage)
	r.POST("/api/messages/image", h.CreateImageMessage)
	r.POST("/api/upload", h.Upload)
	r.GET("/api/messages/single/:mid", h.GetMessage)
	r.GET("/api/messages/:room", h.History)
	r.POST("/api/reactions", h.ToggleReaction)
}

// CreateMessage handles POST /api/messages.
func (h *MessageHandler) CreateMessage(c *gin.Context) {
	var req struct {
		Room    string `json:"room" binding:"required"`
		UserID  string `json:"userId" binding:"required"`
		Text    string `json:"text"`
		MID     string `json:"mid"`
		ReplyTo string `json:"replyTo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, telemetry.LevelError, "invalid request payload")
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}
	c.Set(userIDContextKey, req.UserID)

	msg, err := h.svc.Create(c.Request.Context(), chat.CreateInput{
		Room:    req.Room,
		UserID:  req.UserID,
		Text:    req.Text,
		MID:     req.MID,
		ReplyTo: req.ReplyTo,
	})
	if err != nil {
		h.emitAudit(c, telemetry.LevelError, "message rejected")
		writeError(c, err, h.production)
		return
	}

	h.emitAudit(c, telemetry.LevelInfo, "Message sent")
	c.JSON(http.StatusOK, msg)
}

// CreateImageMessage handles POST /api/messages/image with an inline or remote payload.
func (h *MessageHandler) CreateImageMessage(c *gin.Context) {
	var req struct {
		Room         string `json:"room" binding:"required"`
		UserID       string `json:"userId" binding:"required"`
		MID          string `json:"mid" binding:"required"`
		MediaPayload string `json:"mediaPayload" binding:"required"`
		FileName     string `json:"fileName"`
		MimeType     string `json:"mimeType" binding:"required"`
		ReplyTo      string `json:"replyTo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, telemetry.LevelError, "invalid request payload")
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}
	c.Set(userIDContextKey, req.UserID)

	msg, err := h.svc.CreateImage(c.Request.Context(), chat.ImageInput{
		Room:     req.Room,
		UserID:   req.UserID,
		MID:      req.MID,
		MediaURL: req.MediaPayload,
		Size:     int64(len(req.MediaPayload)),
		FileName: req.FileName,
		Mime:     req.MimeType,
		ReplyTo:  req.ReplyTo,
	})
	if err != nil {
		h.emitAudit(c, telemetry.LevelError, "image message rejected")
		writeError(c, err, h.production)
		return
	}

	h.emitAudit(c, telemetry.LevelInfo, "Image message sent")
	c.JSON(http.StatusOK, msg)
}

// Upload handles POST /api/upload with a multipart "image" file.
func (h *MessageHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, media.MaxImageBytes+1<<20)

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": media.ErrTooLarge.Error(), "field": "image"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required", "field": "image"})
		return
	}
	defer file.Close()

	var form struct {
		Room    string `form:"room" binding:"required"`
		UserID  string `form:"userId" binding:"required"`
		MID     string `form:"mid" binding:"required"`
		ReplyTo string `form:"replyTo"`
	}
	if err := c.ShouldBind(&form); err != nil {
		h.emitAudit(c, telemetry.LevelError, "invalid upload form")
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}
	c.Set(userIDContextKey, form.UserID)

	if header.Size > media.MaxImageBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": media.ErrTooLarge.Error(), "field": "image"})
		return
	}

	ctx := c.Request.Context()
	existing, found, err := h.svc.ExistingImage(ctx, form.Room, form.UserID, form.MID)
	if err != nil {
		h.emitAudit(c, telemetry.LevelError, "upload rejected")
		writeError(c, err, h.production)
		return
	}
	if found {
		c.JSON(http.StatusOK, existing)
		return
	}

	stored, err := h.uploader.Save(file, header.Filename)
	switch {
	case errors.Is(err, media.ErrNotImage), errors.Is(err, media.ErrTooLarge):
		h.emitAudit(c, telemetry.LevelError, "upload rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "image"})
		return
	case err != nil:
		h.emitAudit(c, telemetry.LevelError, "internal error")
		writeError(c, err, h.production)
		return
	}

	msg, err := h.svc.CreateImage(ctx, chat.ImageInput{
		Room:     form.Room,
		UserID:   form.UserID,
		MID:      form.MID,
		MediaURL: stored.URL,
		Size:     stored.Size,
		FileName: stored.FileName,
		Mime:     stored.Mime,
		ReplyTo:  form.ReplyTo,
	})
	// A failed create, or a concurrent upload of the same mid winning, leaves this file unreferenced.
	if err != nil || msg.MediaURL != stored.URL {
		if removeErr := h.uploader.Remove(stored.URL); removeErr != nil {
			slog.WarnContext(ctx, "removing unreferenced upload failed", "url", stored.URL, "error", removeErr)
		}
	}
	if err != nil {
		h.emitAudit(c, telemetry.LevelError, "image message rejected")
		writeError(c, err, h.production)
		return
	}

	h.emitAudit(c, telemetry.LevelInfo, "Image uploaded")
	c.JSON(http.StatusOK, msg)
}

// GetMessage handles GET /api/messages/single/:mid.
func (h *MessageHandler) GetMessage(c *gin.Context) {
	msg, err := h.svc.Get(c.Request.Context(), c.Param("mid"))
	if err != nil {
		writeError(c, err, h.production)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// History handles GET /api/messages/:room.
func (h *MessageHandler) History(c *gin.Context) {
	q := chat.HistoryQuery{
		Room:      c.Param("room"),
		SinceMID:  c.Query("sinceMid"),
		BeforeMID: c.Query("beforeMid"),
	}

	var ok bool
	if q.Since, ok = queryInt64(c, "since"); !ok {
		return
	}
	if q.Before, ok = queryInt64(c, "before"); !ok {
		return
	}
	limit, ok := queryInt64(c, "limit")
	if !ok {
		return
	}
	if limit != nil {
		q.Limit = int(*limit)
	}

	page, err := h.svc.History(c.Request.Context(), q)
	if err != nil {
		writeError(c, err, h.production)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ToggleReaction handles POST /api/reactions.
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	var req struct {
		MID    string `json:"mid" binding:"required"`
		UserID string `json:"userId" binding:"required"`
		Emoji  string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}
	c.Set(userIDContextKey, req.UserID)

	msg, err := h.svc.ToggleReaction(c.Request.Context(), req.MID, req.UserID, req.Emoji)
	if err != nil {
		writeError(c, err, h.production)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

// queryInt64 parses an optional integer query parameter, answering 400 when malformed.
func queryInt64(c *gin.Context, key string) (*int64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be an integer", "field": key})
		return nil, false
	}
	return &v, true
}
