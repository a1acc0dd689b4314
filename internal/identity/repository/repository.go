package repository

import (
	"context"
	"errors"
	"time"

	"roomly/identity/internal/identity/domain"
)

// ErrDuplicate is returned when a write violates a uniqueness constraint on
// email, confirmed phone, or (provider, external id). Callers treat it as
// "created or taken concurrently" and retry as a lookup.
var ErrDuplicate = errors.New("identity: duplicate attribute")

// Repository is the durable store for identities. Lookups return nil, nil when
// no row matches; errors are reserved for store failures.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	// GetByPhone matches on phone and the confirmed flag, so promoted and
	// legacy-unconfirmed rows are addressed separately.
	GetByPhone(ctx context.Context, phone string, confirmed bool) (*domain.Identity, error)
	GetByExternal(ctx context.Context, provider, externalID string) (*domain.Identity, error)

	Create(ctx context.Context, i *domain.Identity) error
	ConfirmPhone(ctx context.Context, id string, at time.Time) error
	AttachExternal(ctx context.Context, id, provider, externalID string, at time.Time) error
	// UpdateDisplayFields overwrites name/avatar on repeat external syncs.
	UpdateDisplayFields(ctx context.Context, id, name, avatarURL string, at time.Time) error
	CompleteProfile(ctx context.Context, id, name, occupation, bio string, at time.Time) error
	// SetEmail attaches an email to an identity that has none; the email is
	// stored unverified. Returns ErrDuplicate when another identity owns it.
	SetEmail(ctx context.Context, id, email string, verified bool, at time.Time) error

	// RegisterLoginFailure atomically increments the consecutive-failure count
	// and, when it reaches maxFailures, sets lockout_until to lockedUntil.
	// Returns the new count so callers can report lockout.
	RegisterLoginFailure(ctx context.Context, id string, maxFailures int, lockedUntil, at time.Time) (int, error)
	ResetLoginFailures(ctx context.Context, id string, at time.Time) error
}
