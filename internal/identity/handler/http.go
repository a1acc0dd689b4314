// Package handler exposes the identity operations over HTTP.
package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roomly/identity/internal/autherr"
	"roomly/identity/internal/identity/domain"
	"roomly/identity/internal/identity/service"
	"roomly/identity/internal/server/middleware"
)

// Handler serves the identity routes.
type Handler struct {
	svc *service.Service
	log *zap.Logger
}

// NewHandler returns an identity HTTP handler.
func NewHandler(svc *service.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// Register mounts the identity routes. requireAuth guards the routes that
// need an authenticated session.
func (h *Handler) Register(r fiber.Router, requireAuth fiber.Handler) {
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	r.Post("/auth/external/sync", h.syncExternal)
	r.Post("/auth/phone/verified", h.syncVerifiedPhone)
	r.Get("/auth/validate", requireAuth, h.validate)
	r.Post("/auth/profile/complete", requireAuth, h.completeProfile)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, autherr.E(autherr.KindValidation, "invalid request body"))
	}
	res, err := h.svc.Register(c.UserContext(), service.RegisterInput{
		Email: req.Email, Password: req.Password, Name: req.Name,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(authResponse(res))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, autherr.E(autherr.KindValidation, "invalid request body"))
	}
	res, err := h.svc.Login(c.UserContext(), service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(authResponse(res))
}

type externalSyncRequest struct {
	Provider string         `json:"provider"`
	Claims   map[string]any `json:"claims"`
}

func (h *Handler) syncExternal(c *fiber.Ctx) error {
	var req externalSyncRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, autherr.E(autherr.KindValidation, "invalid request body"))
	}
	res, err := h.svc.SyncExternalUser(c.UserContext(), req.Provider, req.Claims)
	if err != nil {
		return h.fail(c, err)
	}
	status := fiber.StatusOK
	if res.IsNewUser {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(authResponse(res))
}

type verifiedPhoneRequest struct {
	Phone string `json:"phone"`
}

func (h *Handler) syncVerifiedPhone(c *fiber.Ctx) error {
	var req verifiedPhoneRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, autherr.E(autherr.KindValidation, "invalid request body"))
	}
	res, err := h.svc.SyncVerifiedPhone(c.UserContext(), req.Phone)
	if err != nil {
		return h.fail(c, err)
	}
	status := fiber.StatusOK
	if res.IsNewUser {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(authResponse(res))
}

type completeProfileRequest struct {
	Name       string `json:"name"`
	Occupation string `json:"occupation"`
	Bio        string `json:"bio"`
	Email      string `json:"email"`
}

func (h *Handler) completeProfile(c *fiber.Ctx) error {
	var req completeProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return WriteError(c, autherr.E(autherr.KindValidation, "invalid request body"))
	}
	subject := middleware.Subject(c)
	if subject == "" {
		return WriteError(c, autherr.E(autherr.KindUnauthorized, "missing session"))
	}
	id, err := h.svc.CompleteProfile(c.UserContext(), subject, service.CompleteProfileInput{
		Name: req.Name, Occupation: req.Occupation, Bio: req.Bio, Email: req.Email,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"user": userPayload(id)})
}

func (h *Handler) validate(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return WriteError(c, autherr.E(autherr.KindUnauthorized, "missing session"))
	}
	return c.JSON(fiber.Map{
		"subject": claims.Subject,
		"email":   claims.Email,
		"name":    claims.Name,
	})
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	if autherr.KindOf(err) == autherr.KindInternal {
		h.log.Error("identity request failed",
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return WriteError(c, err)
}

// WriteError renders an error as the standard envelope. Internal causes are
// never echoed to the client.
func WriteError(c *fiber.Ctx, err error) error {
	kind := autherr.KindOf(err)
	msg := "internal failure"
	var e *autherr.Error
	if kind != autherr.KindInternal && errors.As(err, &e) {
		msg = e.Msg
	}
	return c.Status(autherr.HTTPStatus(kind)).JSON(fiber.Map{
		"error": fiber.Map{"code": string(kind), "message": msg},
	})
}

func authResponse(res *service.AuthResult) fiber.Map {
	return fiber.Map{
		"token":                       res.Token,
		"expires_at":                  res.ExpiresAt.UTC().Format(time.RFC3339),
		"is_new_user":                 res.IsNewUser,
		"requires_profile_completion": res.RequiresProfileCompletion,
		"user":                        userPayload(res.Identity),
	}
}

func userPayload(id *domain.Identity) fiber.Map {
	return fiber.Map{
		"id":               id.ID,
		"name":             id.DisplayName,
		"email":            id.Email,
		"phone":            id.Phone,
		"occupation":       id.Occupation,
		"bio":              id.Bio,
		"avatar_url":       id.AvatarURL,
		"profile_complete": id.ProfileComplete,
	}
}
