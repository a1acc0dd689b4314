package repository

import (
	"context"
	"time"

	"roomly/identity/internal/otp/domain"
)

// Repository defines persistence for phone verification challenges. Lookups
// return nil, nil when no row matches.
type Repository interface {
	Create(ctx context.Context, c *domain.Challenge) error
	GetByRequestID(ctx context.Context, requestID string) (*domain.Challenge, error)
	// LatestByPhone returns the most recently created challenge for the phone,
	// used or not, for resend-cooldown checks.
	LatestByPhone(ctx context.Context, phone string) (*domain.Challenge, error)

	// RegisterAttempt increments the attempt counter only while the counter is
	// below maxAttempts and the challenge is unused. It returns the counter
	// after the call and ok=true when this attempt was admitted. A single
	// conditional UPDATE keeps concurrent verifies from exceeding the cap.
	RegisterAttempt(ctx context.Context, id string, maxAttempts int) (attempts int, ok bool, err error)

	// MarkUsed flips the challenge to used only if it is not already used.
	// Returns ok=false when another verify won the race.
	MarkUsed(ctx context.Context, id string, at time.Time) (ok bool, err error)
}
