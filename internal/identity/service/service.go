// Package service holds the transport-agnostic identity operations: password
// register/login, profile completion, external claim sync, verified-phone
// sync, and session token validation. Handlers translate results and typed
// errors to HTTP; nothing in here knows about fiber.
package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"roomly/identity/internal/audit"
	"roomly/identity/internal/autherr"
	"roomly/identity/internal/identity/claims"
	"roomly/identity/internal/identity/domain"
	"roomly/identity/internal/identity/repository"
	"roomly/identity/internal/security"
)

const minPasswordLength = 8

// Tokens issues and validates session tokens.
type Tokens interface {
	CreateSession(subject, email, name string) (token string, expiresAt time.Time, err error)
	ValidateAndDecode(token string) (*security.SessionClaims, error)
}

// AuthResult is returned by every operation that establishes a session.
type AuthResult struct {
	Token                     string
	ExpiresAt                 time.Time
	Identity                  *domain.Identity
	IsNewUser                 bool
	RequiresProfileCompletion bool
}

// RegisterInput carries the password registration fields.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput carries the password login fields.
type LoginInput struct {
	Email    string
	Password string
}

// CompleteProfileInput carries the profile completion fields. Email is
// optional; when set it is attached unverified and must be globally unique.
type CompleteProfileInput struct {
	Name       string
	Occupation string
	Bio        string
	Email      string
}

// Service implements the identity operations over a repository, a reconciler,
// and the token issuer.
type Service struct {
	repo       repository.Repository
	reconciler *Reconciler
	hasher     *security.Hasher
	tokens     Tokens
	emitter    audit.Emitter
	log        *zap.Logger

	maxLoginFailures int
	lockoutWindow    time.Duration

	nowF func() time.Time
	idF  func() string
}

// NewService wires the identity service. emitter may be nil.
func NewService(repo repository.Repository, reconciler *Reconciler, hasher *security.Hasher, tokens Tokens, emitter audit.Emitter, log *zap.Logger, maxLoginFailures int, lockoutWindow time.Duration) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:             repo,
		reconciler:       reconciler,
		hasher:           hasher,
		tokens:           tokens,
		emitter:          emitter,
		log:              log,
		maxLoginFailures: maxLoginFailures,
		lockoutWindow:    lockoutWindow,
		nowF:             func() time.Time { return time.Now().UTC() },
		idF:              func() string { return uuid.New().String() },
	}
}

// Register creates a password identity for a new email and opens a session.
// An email already registered, by any flow, is a conflict.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, autherr.E(autherr.KindValidation, "name is required")
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, autherr.Internal(err)
	}
	if existing != nil {
		return nil, autherr.E(autherr.KindConflict, "email already registered")
	}

	hash, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, autherr.Internal(err)
	}
	now := s.nowF()
	id := &domain.Identity{
		ID:            s.idF(),
		DisplayName:   name,
		Email:         email,
		EmailVerified: false,
		AuthProvider:  domain.AuthProviderPassword,
		PasswordHash:  hash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := id.Validate(); err != nil {
		return nil, autherr.Internal(err)
	}
	err = s.repo.Create(ctx, id)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, autherr.E(autherr.KindConflict, "email already registered")
	}
	if err != nil {
		return nil, autherr.Internal(err)
	}

	audit.EmitAsync(s.emitter, s.log, audit.NewEvent(audit.ActionRegister, id.ID, now))
	return s.openSession(id, true)
}

// Login verifies email/password credentials. Lookup misses and hash
// mismatches are indistinguishable to the caller. Consecutive failures lock
// the account for the configured window.
func (s *Service) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, autherr.E(autherr.KindValidation, "password is required")
	}

	id, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, autherr.Internal(err)
	}
	if id == nil || id.PasswordHash == "" {
		return nil, autherr.E(autherr.KindInvalidCredentials, "invalid email or password")
	}

	now := s.nowF()
	if id.Locked(now) {
		return nil, autherr.E(autherr.KindRateLimited, "account temporarily locked")
	}

	if err := s.hasher.Compare(id.PasswordHash, []byte(in.Password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, autherr.Internal(err)
		}
		attempts, ferr := s.repo.RegisterLoginFailure(ctx, id.ID, s.maxLoginFailures, now.Add(s.lockoutWindow), now)
		if ferr != nil {
			s.log.Error("login failure counter update failed", zap.Error(ferr))
		}
		audit.EmitAsync(s.emitter, s.log, audit.NewEvent(audit.ActionLoginFailed, id.ID, now))
		if attempts >= s.maxLoginFailures {
			audit.EmitAsync(s.emitter, s.log, audit.NewEvent(audit.ActionLockout, id.ID, now))
		}
		return nil, autherr.E(autherr.KindInvalidCredentials, "invalid email or password")
	}

	if id.FailedLoginAttempts > 0 || id.LockoutUntil != nil {
		if err := s.repo.ResetLoginFailures(ctx, id.ID, now); err != nil {
			s.log.Error("login failure counter reset failed", zap.Error(err))
		}
	}
	audit.EmitAsync(s.emitter, s.log, audit.NewEvent(audit.ActionLogin, id.ID, now))
	return s.openSession(id, false)
}

// CompleteProfile fills in the post-signup profile fields and marks the
// profile complete. Idempotent for equal inputs.
func (s *Service) CompleteProfile(ctx context.Context, subject string, in CompleteProfileInput) (*domain.Identity, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, autherr.E(autherr.KindValidation, "name is required")
	}
	id, err := s.repo.GetByID(ctx, subject)
	if err != nil {
		return nil, autherr.Internal(err)
	}
	if id == nil {
		return nil, autherr.E(autherr.KindNotFound, "identity not found")
	}
	now := s.nowF()
	if strings.TrimSpace(in.Email) != "" {
		email, err := normalizeEmail(in.Email)
		if err != nil {
			return nil, err
		}
		if email != id.Email {
			other, err := s.repo.GetByEmail(ctx, email)
			if err != nil {
				return nil, autherr.Internal(err)
			}
			if other != nil && other.ID != id.ID {
				return nil, autherr.E(autherr.KindConflict, "email already in use")
			}
			// Attached emails start unverified; only an upstream provider
			// assertion marks one verified.
			err = s.repo.SetEmail(ctx, id.ID, email, false, now)
			if errors.Is(err, repository.ErrDuplicate) {
				return nil, autherr.E(autherr.KindConflict, "email already in use")
			}
			if err != nil {
				return nil, autherr.Internal(err)
			}
			id.Email = email
			id.EmailVerified = false
		}
	}
	if err := s.repo.CompleteProfile(ctx, id.ID, name, strings.TrimSpace(in.Occupation), strings.TrimSpace(in.Bio), now); err != nil {
		return nil, autherr.Internal(err)
	}
	id.DisplayName = name
	id.Occupation = strings.TrimSpace(in.Occupation)
	id.Bio = strings.TrimSpace(in.Bio)
	id.ProfileComplete = true
	id.UpdatedAt = now

	audit.EmitAsync(s.emitter, s.log, audit.NewEvent(audit.ActionProfileCompleted, id.ID, now))
	return id, nil
}

// ValidateToken decodes and validates a session token.
func (s *Service) ValidateToken(ctx context.Context, token string) (*security.SessionClaims, error) {
	sc, err := s.tokens.ValidateAndDecode(token)
	if err != nil {
		return nil, autherr.E(autherr.KindUnauthorized, "invalid or expired token")
	}
	return sc, nil
}

// SyncExternalUser reconciles an upstream-verified external claim bag to an
// Identity and opens a session.
func (s *Service) SyncExternalUser(ctx context.Context, provider string, bag map[string]any) (*AuthResult, error) {
	if strings.TrimSpace(provider) == "" {
		return nil, autherr.E(autherr.KindValidation, "provider is required")
	}
	ext, err := claims.Extract(provider, bag)
	if err != nil {
		return nil, autherr.Wrap(autherr.KindValidation, "claims missing subject", err)
	}
	id, isNew, err := s.reconciler.ReconcileExternal(ctx, ext)
	if err != nil {
		return nil, err
	}
	audit.EmitAsync(s.emitter, s.log, audit.NewEvent(audit.ActionExternalSync, id.ID, s.nowF()))
	return s.openSession(id, isNew)
}

// SyncVerifiedPhone reconciles a phone whose ownership was verified out of
// band (trusted internal callers only) and opens a session.
func (s *Service) SyncVerifiedPhone(ctx context.Context, phone string) (*AuthResult, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	id, isNew, err := s.reconciler.ReconcileVerifiedPhone(ctx, normalized)
	if err != nil {
		return nil, err
	}
	return s.openSession(id, isNew)
}

func (s *Service) openSession(id *domain.Identity, isNew bool) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.CreateSession(id.ID, id.Email, id.DisplayName)
	if err != nil {
		return nil, autherr.Internal(err)
	}
	return &AuthResult{
		Token:                     token,
		ExpiresAt:                 expiresAt,
		Identity:                  id,
		IsNewUser:                 isNew,
		RequiresProfileCompletion: !id.ProfileComplete,
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", autherr.E(autherr.KindValidation, "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", autherr.E(autherr.KindValidation, "invalid email")
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return autherr.E(autherr.KindValidation, "password must be at least 8 characters")
	}
	return nil
}

// NormalizePhone strips spaces and dashes and validates E.164-ish shape:
// optional leading +, then 8 to 15 digits.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		if r == ' ' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	p := b.String()
	digits := p
	if strings.HasPrefix(p, "+") {
		digits = p[1:]
	}
	if len(digits) < 8 || len(digits) > 15 {
		return "", autherr.E(autherr.KindValidation, "invalid phone number")
	}
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return "", autherr.E(autherr.KindValidation, "invalid phone number")
		}
	}
	return p, nil
}
