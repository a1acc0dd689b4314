// Package handler implements the dev-only code echo route
// (GET /v1/dev/otp/:request_id). Only mounted when dev code echo is enabled
// and the environment is not production.
package handler

import (
	"github.com/gofiber/fiber/v2"

	"roomly/identity/internal/devotp"
)

const devNote = "DEV MODE ONLY"

// Handler reads plain codes from the dev store.
type Handler struct {
	store devotp.Store
}

// NewHandler returns a dev code handler over the given store.
func NewHandler(store devotp.Store) *Handler {
	return &Handler{store: store}
}

// Register mounts the dev route.
func (h *Handler) Register(r fiber.Router) {
	r.Get("/dev/otp/:request_id", h.getCode)
}

func (h *Handler) getCode(c *fiber.Ctx) error {
	requestID := c.Params("request_id")
	if requestID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fiber.Map{"code": "validation_error", "message": "request_id is required"},
		})
	}
	code, ok := h.store.Get(c.UserContext(), requestID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": fiber.Map{"code": "not_found", "message": "code not found or expired"},
		})
	}
	return c.JSON(fiber.Map{"code": code, "note": devNote})
}
