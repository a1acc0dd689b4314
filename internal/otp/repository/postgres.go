package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"roomly/identity/internal/otp/domain"
)

const challengeColumns = `id, phone, request_id, code_hash, salt, channel,
	expires_at, attempt_count, used, used_at, last_sent_at, created_at`

// PostgresRepository persists challenges in the otp_challenges table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a challenge repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the challenge. The challenge must have ID and RequestID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO otp_challenges (`+challengeColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		c.ID, c.Phone, c.RequestID, c.CodeHash, c.Salt, string(c.Channel),
		c.ExpiresAt, c.AttemptCount, c.Used, nullTimePtr(c.UsedAt), c.LastSentAt, c.CreatedAt)
	return err
}

// GetByRequestID returns the challenge for the opaque request id, or nil.
func (r *PostgresRepository) GetByRequestID(ctx context.Context, requestID string) (*domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM otp_challenges WHERE request_id = $1`, requestID)
	return scanChallenge(row)
}

// LatestByPhone returns the most recently created challenge for the phone, or nil.
func (r *PostgresRepository) LatestByPhone(ctx context.Context, phone string) (*domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM otp_challenges
		 WHERE phone = $1 ORDER BY created_at DESC LIMIT 1`, phone)
	return scanChallenge(row)
}

// RegisterAttempt increments attempt_count when the challenge is unused and
// under the cap. The WHERE clause makes the check-and-increment atomic.
func (r *PostgresRepository) RegisterAttempt(ctx context.Context, id string, maxAttempts int) (int, bool, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx,
		`UPDATE otp_challenges
		 SET attempt_count = attempt_count + 1
		 WHERE id = $1 AND used = FALSE AND attempt_count < $2
		 RETURNING attempt_count`,
		id, maxAttempts).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return attempts, true, nil
}

// MarkUsed flips used to true only once; the loser of a concurrent verify
// sees ok=false.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE otp_challenges SET used = TRUE, used_at = $2 WHERE id = $1 AND used = FALSE`,
		id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row rowScanner) (*domain.Challenge, error) {
	var (
		c       domain.Challenge
		channel string
		usedAt  sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.Phone, &c.RequestID, &c.CodeHash, &c.Salt, &channel,
		&c.ExpiresAt, &c.AttemptCount, &c.Used, &usedAt, &c.LastSentAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Channel = domain.Channel(channel)
	if usedAt.Valid {
		t := usedAt.Time
		c.UsedAt = &t
	}
	return &c, nil
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
