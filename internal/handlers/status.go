package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Version is reported by /api/status.
const Version = "1.0.0"

// Pinger is a dependency whose reachability shows up in /api/status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusHandler serves the liveness and status endpoints.
type StatusHandler struct {
	environment string
	publisher   string
	database    Pinger
	relay       Pinger
	started     time.Time
	now         func() time.Time
}

// NewStatusHandler builds a StatusHandler. relay may be nil when running single-instance.
func NewStatusHandler(environment, publisherMode string, database, relay Pinger) *StatusHandler {
	return &StatusHandler{
		environment: environment,
		publisher:   publisherMode,
		database:    database,
		relay:       relay,
		started:     time.Now(),
		now:         time.Now,
	}
}

// Register mounts the handler's routes.
func (h *StatusHandler) Register(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/api/ping", h.Ping)
	r.GET("/api/status", h.Status)
}

func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   h.now().UTC().Format(time.RFC3339Nano),
		"environment": h.environment,
	})
}

func (h *StatusHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
		"uptime":    h.uptime(),
	})
}

// Status reports dependency state. It always answers 200; callers read the fields.
func (h *StatusHandler) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{
		"server":      "running",
		"database":    pingStatus(ctx, h.database),
		"publisher":   h.publisher,
		"uptime":      h.uptime(),
		"version":     Version,
		"environment": h.environment,
		"timestamp":   h.now().UTC().Format(time.RFC3339Nano),
	}
	if h.relay != nil {
		body["relay"] = pingStatus(ctx, h.relay)
	}
	c.JSON(http.StatusOK, body)
}

func (h *StatusHandler) uptime() float64 {
	return h.now().Sub(h.started).Seconds()
}

func pingStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}
