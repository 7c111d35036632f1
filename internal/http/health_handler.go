package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger es cualquier dependencia que sabe reportar si está disponible.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	database Pinger
	gateway  Pinger
	timeout  time.Duration
}

func NewHealthHandler(database, gateway Pinger) *HealthHandler {
	return &HealthHandler{database: database, gateway: gateway, timeout: 2 * time.Second}
}

// Health maneja GET /health. Sólo la base de datos define el status HTTP.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	database := probe(ctx, h.database)
	gateway := probe(ctx, h.gateway)

	status := http.StatusOK
	if database != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"success":       status == http.StatusOK,
		"database":      database,
		"model_gateway": gateway,
	})
}

func probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		return "unavailable"
	}
	return "ok"
}
