// Package server assembles the fiber application: middleware, route groups,
// and the handler wiring.
package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	devotphandler "roomly/identity/internal/devotp/handler"
	healthhandler "roomly/identity/internal/health/handler"
	identityhandler "roomly/identity/internal/identity/handler"
	identityservice "roomly/identity/internal/identity/service"
	otphandler "roomly/identity/internal/otp/handler"
	otpservice "roomly/identity/internal/otp/service"
	"roomly/identity/internal/server/middleware"
)

// Deps holds the wired services and infrastructure for the HTTP server.
type Deps struct {
	// Identity serves register/login/profile/external/phone routes.
	Identity *identityservice.Service
	// Otp serves the challenge request/verify routes.
	Otp *otpservice.Service
	// Tokens validates session tokens for the guarded routes.
	Tokens middleware.TokenValidator
	// DB is pinged by the health route. May be nil.
	DB healthhandler.Pinger
	// DevOTPHandler is the dev-only code echo route. Nil unless dev code echo
	// is enabled and the environment is not production.
	DevOTPHandler *devotphandler.Handler
	// RateCounter throttles challenge requests per client IP. May be nil to
	// disable the transport-level limit; the per-phone cooldown still holds.
	RateCounter middleware.Counter
	// OtpRequestLimit and OtpRequestWindow bound challenge requests per IP.
	OtpRequestLimit  int
	OtpRequestWindow time.Duration

	Log *zap.Logger
}

// New builds the fiber app with all routes mounted under /v1.
func New(deps Deps) *fiber.App {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})
	app.Use(recover.New())
	app.Use(middleware.Observe(log))

	v1 := app.Group("/v1")
	healthhandler.NewHandler(deps.DB).Register(v1)

	requireAuth := middleware.RequireSession(deps.Tokens)
	identityhandler.NewHandler(deps.Identity, log).Register(v1, requireAuth)

	var otpLimit fiber.Handler
	if deps.RateCounter != nil && deps.OtpRequestLimit > 0 {
		otpLimit = middleware.RateLimit(deps.RateCounter, log, "otp_req",
			deps.OtpRequestLimit, deps.OtpRequestWindow,
			func(c *fiber.Ctx) string { return c.IP() })
	}
	otphandler.NewHandler(deps.Otp, log).Register(v1, otpLimit)

	if deps.DevOTPHandler != nil {
		deps.DevOTPHandler.Register(v1)
	}
	return app
}
