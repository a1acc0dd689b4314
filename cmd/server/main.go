// server runs the identity and phone verification HTTP API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roomly/identity/internal/audit"
	"roomly/identity/internal/config"
	"roomly/identity/internal/db"
	"roomly/identity/internal/devotp"
	devotphandler "roomly/identity/internal/devotp/handler"
	identityrepo "roomly/identity/internal/identity/repository"
	identityservice "roomly/identity/internal/identity/service"
	otprepo "roomly/identity/internal/otp/repository"
	otpservice "roomly/identity/internal/otp/service"
	"roomly/identity/internal/otp/sms"
	"roomly/identity/internal/security"
	"roomly/identity/internal/server"
	"roomly/identity/internal/server/middleware"
	"roomly/identity/internal/telemetry/otel"
)

// otpRequestLimit bounds challenge requests per client IP per window, on top
// of the per-phone resend cooldown.
const (
	otpRequestLimit  = 10
	otpRequestWindow = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "roomly-auth", cfg.OTLPInsecure)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer database.Close()

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		logger.Fatal("jwt private key", zap.Error(err))
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		logger.Fatal("jwt public key", zap.Error(err))
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTTL())

	var emitter audit.Emitter = audit.NopEmitter{}
	if kafkaEmitter := audit.NewKafkaEmitter(cfg.AuditKafkaBrokersList(), cfg.AuditKafkaTopic); kafkaEmitter != nil {
		emitter = kafkaEmitter
		defer kafkaEmitter.Close()
		logger.Info("audit publishing enabled", zap.String("topic", cfg.AuditKafkaTopic))
	}

	identities := identityrepo.NewPostgresRepository(database)
	reconciler := identityservice.NewReconciler(identities)
	hasher := security.NewHasher(cfg.BcryptCost)
	identitySvc := identityservice.NewService(identities, reconciler, hasher, tokens,
		emitter, logger, cfg.LoginMaxFailures, cfg.LoginLockoutWindow())

	var sender sms.Sender
	var devStore devotp.Store
	var devHandler *devotphandler.Handler
	if cfg.OTPReturnToClient {
		// Dev mode: codes are echoed through the dev route, not sent.
		memStore := devotp.NewMemoryStore()
		devStore = memStore
		devHandler = devotphandler.NewHandler(memStore)
		sender = sms.NopSender{}
		logger.Warn("dev OTP mode enabled; codes are retrievable via /v1/dev/otp/:request_id")
	} else {
		sender = sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	}

	challenges := otprepo.NewPostgresRepository(database)
	otpSvc := otpservice.NewService(challenges, identitySvc, sender, devStore, emitter, logger,
		cfg.OTPCodeLength, cfg.OTPExpiry(), cfg.OTPMaxAttempts, cfg.OTPResendCooldown())

	var rateCounter middleware.Counter = middleware.NewMemoryCounter()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		rateCounter = middleware.NewRedisCounter(redisClient)
		logger.Info("redis rate limiter enabled", zap.String("addr", cfg.RedisAddr))
	}

	app := server.New(server.Deps{
		Identity:         identitySvc,
		Otp:              otpSvc,
		Tokens:           tokens,
		DB:               database,
		DevOTPHandler:    devHandler,
		RateCounter:      rateCounter,
		OtpRequestLimit:  otpRequestLimit,
		OtpRequestWindow: otpRequestWindow,
		Log:              logger,
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down http server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("http server stopped")
}
