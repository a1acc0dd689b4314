// Package handler exposes the phone verification routes over HTTP.
package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roomly/identity/internal/autherr"
	identhandler "roomly/identity/internal/identity/handler"
	"roomly/identity/internal/otp/service"
)

// Handler serves the challenge routes.
type Handler struct {
	svc *service.Service
	log *zap.Logger
}

// NewHandler returns a challenge HTTP handler.
func NewHandler(svc *service.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// Register mounts the challenge routes. rateLimit guards the request route;
// pass nil to mount without throttling.
func (h *Handler) Register(r fiber.Router, rateLimit fiber.Handler) {
	if rateLimit != nil {
		r.Post("/auth/otp/request", rateLimit, h.request)
	} else {
		r.Post("/auth/otp/request", h.request)
	}
	r.Post("/auth/otp/verify", h.verify)
}

type requestOtpRequest struct {
	Phone string `json:"phone"`
}

func (h *Handler) request(c *fiber.Ctx) error {
	var req requestOtpRequest
	if err := c.BodyParser(&req); err != nil {
		return identhandler.WriteError(c, autherr.E(autherr.KindValidation, "invalid request body"))
	}
	res, err := h.svc.RequestOtp(c.UserContext(), req.Phone)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"request_id": res.RequestID,
		"expires_at": res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type verifyOtpRequest struct {
	RequestID string `json:"request_id"`
	Phone     string `json:"phone"`
	Code      string `json:"code"`
}

func (h *Handler) verify(c *fiber.Ctx) error {
	var req verifyOtpRequest
	if err := c.BodyParser(&req); err != nil {
		return identhandler.WriteError(c, autherr.E(autherr.KindValidation, "invalid request body"))
	}
	res, err := h.svc.VerifyOtp(c.UserContext(), req.RequestID, req.Phone, req.Code)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"token":                       res.Token,
		"expires_at":                  res.ExpiresAt.UTC().Format(time.RFC3339),
		"is_new_user":                 res.IsNewUser,
		"requires_profile_completion": res.RequiresProfileCompletion,
		"user": fiber.Map{
			"id":               res.Identity.ID,
			"name":             res.Identity.DisplayName,
			"phone":            res.Identity.Phone,
			"profile_complete": res.Identity.ProfileComplete,
		},
	})
}

// fail collapses every verification failure mode into one generic response so
// the reply does not reveal whether a challenge exists, is spent, or how many
// attempts remain. Validation, throttling, and internal failures keep their
// own shapes.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	switch autherr.KindOf(err) {
	case autherr.KindNotFound, autherr.KindExpired, autherr.KindUsed,
		autherr.KindAttemptsExceeded, autherr.KindInvalidCode:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": fiber.Map{"code": string(autherr.KindInvalidCode), "message": "invalid or expired code"},
		})
	case autherr.KindInternal:
		h.log.Error("otp request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return identhandler.WriteError(c, err)
}
