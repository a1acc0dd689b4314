// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "roomly-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "roomly-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// SessionTTLStr is the session token lifetime (e.g. "24h").
	SessionTTLStr string `mapstructure:"SESSION_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OTPCodeLength is the number of digits in a one-time code; default 6.
	OTPCodeLength int `mapstructure:"OTP_CODE_LENGTH"`
	// OTPExpiryMinutes is how long a challenge stays verifiable; default 5.
	OTPExpiryMinutes int `mapstructure:"OTP_EXPIRY_MINUTES"`
	// OTPMaxAttempts is the per-challenge verify attempt budget; default 5.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// OTPResendCooldownStr is the minimum gap between two sends to one phone; default 60s.
	OTPResendCooldownStr string `mapstructure:"OTP_RESEND_COOLDOWN"`
	// OTPReturnToClient enables dev OTP mode: no SMS, code retrievable via
	// GET /v1/dev/otp/:request_id. Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	// LoginMaxFailures is the consecutive-failure count that triggers lockout; default 5.
	LoginMaxFailures int `mapstructure:"LOGIN_MAX_FAILURES"`
	// LoginLockoutWindowStr is how long a locked account stays locked; default 15m.
	LoginLockoutWindowStr string `mapstructure:"LOGIN_LOCKOUT_WINDOW"`

	// SMSLocalAPIKey is the API key for the SMS send channel.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// RedisAddr enables the Redis request limiter when set (host:port).
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// AuditKafkaBrokers is a comma-separated broker list; empty disables audit publishing.
	AuditKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuditKafkaTopic is the Kafka topic for auth audit events.
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables telemetry export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("JWT_ISSUER", "roomly-auth")
	v.SetDefault("JWT_AUDIENCE", "roomly-api")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTP_CODE_LENGTH", 6)
	v.SetDefault("OTP_EXPIRY_MINUTES", 5)
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("OTP_RESEND_COOLDOWN", "60s")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("LOGIN_MAX_FAILURES", 5)
	v.SetDefault("LOGIN_LOCKOUT_WINDOW", "15m")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://www.smslocal.com/dev/bulkV2")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "roomly-auth-audit")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.OTPCodeLength < 4 || cfg.OTPCodeLength > 10 {
		return nil, errors.New("config: OTP_CODE_LENGTH must be between 4 and 10")
	}
	if cfg.OTPMaxAttempts < 1 {
		return nil, errors.New("config: OTP_MAX_ATTEMPTS must be at least 1")
	}

	return &cfg, nil
}

// SessionTTL parses SESSION_TTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTLStr)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// OTPExpiry returns the challenge lifetime derived from OTP_EXPIRY_MINUTES.
func (c *Config) OTPExpiry() time.Duration {
	if c.OTPExpiryMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.OTPExpiryMinutes) * time.Minute
}

// OTPResendCooldown parses OTP_RESEND_COOLDOWN. Returns 60s if unset or invalid.
func (c *Config) OTPResendCooldown() time.Duration {
	d, err := time.ParseDuration(c.OTPResendCooldownStr)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// LoginLockoutWindow parses LOGIN_LOCKOUT_WINDOW. Returns 15m if unset or invalid.
func (c *Config) LoginLockoutWindow() time.Duration {
	d, err := time.ParseDuration(c.LoginLockoutWindowStr)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// AuditKafkaBrokersList returns broker addresses from the comma-separated config.
// Used to decide if audit publishing is enabled (non-empty list) and to create the producer.
func (c *Config) AuditKafkaBrokersList() []string {
	if c == nil || c.AuditKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.AuditKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
