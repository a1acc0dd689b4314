// Package handler implements the health route for load balancers and
// orchestration probes.
package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger checks a dependency (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

const pingTimeout = 2 * time.Second

// Handler serves GET /v1/healthz.
type Handler struct {
	db Pinger
}

// NewHandler returns a health handler. db may be nil; then the DB check is
// skipped.
func NewHandler(db Pinger) *Handler {
	return &Handler{db: db}
}

// Register mounts the health route.
func (h *Handler) Register(r fiber.Router) {
	r.Get("/healthz", h.check)
}

func (h *Handler) check(c *fiber.Ctx) error {
	checks := fiber.Map{}
	healthy := true
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), pingTimeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			checks["database"] = "unreachable"
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}
	status := fiber.StatusOK
	state := "ok"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		state = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{"status": state, "checks": checks})
}
