package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"roomly/identity/internal/identity/domain"
)

const identityColumns = `id, display_name, email, email_verified, phone, phone_confirmed,
	external_id, external_provider, auth_provider, password_hash,
	occupation, bio, avatar_url, profile_complete,
	failed_login_attempts, lockout_until, created_at, updated_at`

// PostgresRepository persists identities in the identities table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an identity repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the identity for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return scanIdentity(row)
}

// GetByEmail returns the identity with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE lower(email) = lower($1)`, email)
	return scanIdentity(row)
}

// GetByPhone returns the identity with the given phone and confirmed flag, or nil.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string, confirmed bool) (*domain.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE phone = $1 AND phone_confirmed = $2`,
		phone, confirmed)
	return scanIdentity(row)
}

// GetByExternal returns the identity linked to (provider, externalID), or nil.
func (r *PostgresRepository) GetByExternal(ctx context.Context, provider, externalID string) (*domain.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities
		 WHERE external_provider = $1 AND external_id = $2`,
		provider, externalID)
	return scanIdentity(row)
}

// Create persists the identity. The identity must have ID set; it is not
// assigned by this method. Returns ErrDuplicate on a uniqueness violation.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (`+identityColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		i.ID,
		i.DisplayName,
		nullString(i.Email),
		i.EmailVerified,
		nullString(i.Phone),
		i.PhoneConfirmed,
		nullString(i.ExternalID),
		nullString(i.ExternalProvider),
		string(i.AuthProvider),
		nullString(i.PasswordHash),
		nullString(i.Occupation),
		nullString(i.Bio),
		nullString(i.AvatarURL),
		i.ProfileComplete,
		i.FailedLoginAttempts,
		nullTimePtr(i.LockoutUntil),
		i.CreatedAt,
		i.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// ConfirmPhone promotes an unconfirmed phone row. Returns ErrDuplicate when a
// confirmed identity for the same phone already exists (concurrent promote).
func (r *PostgresRepository) ConfirmPhone(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET phone_confirmed = TRUE, updated_at = $2 WHERE id = $1`,
		id, at)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// AttachExternal links (provider, externalID) to an existing identity.
// Returns ErrDuplicate when the external id is already linked elsewhere.
func (r *PostgresRepository) AttachExternal(ctx context.Context, id, provider, externalID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities
		 SET external_provider = $2, external_id = $3, updated_at = $4
		 WHERE id = $1`,
		id, provider, externalID, at)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// UpdateDisplayFields overwrites the mutable display fields.
func (r *PostgresRepository) UpdateDisplayFields(ctx context.Context, id, name, avatarURL string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET display_name = $2, avatar_url = $3, updated_at = $4 WHERE id = $1`,
		id, name, nullString(avatarURL), at)
	return err
}

// CompleteProfile sets the profile fields and marks the profile complete.
func (r *PostgresRepository) CompleteProfile(ctx context.Context, id, name, occupation, bio string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities
		 SET display_name = $2, occupation = $3, bio = $4, profile_complete = TRUE, updated_at = $5
		 WHERE id = $1`,
		id, name, nullString(occupation), nullString(bio), at)
	return err
}

// SetEmail attaches an email. Returns ErrDuplicate when another identity owns it.
func (r *PostgresRepository) SetEmail(ctx context.Context, id, email string, verified bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET email = $2, email_verified = $3, updated_at = $4 WHERE id = $1`,
		id, email, verified, at)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// RegisterLoginFailure increments the failure counter in a single UPDATE so
// concurrent failed logins cannot both read a stale low count. lockout_until
// is set in the same statement once the incremented count reaches maxFailures.
func (r *PostgresRepository) RegisterLoginFailure(ctx context.Context, id string, maxFailures int, lockedUntil, at time.Time) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx,
		`UPDATE identities
		 SET failed_login_attempts = failed_login_attempts + 1,
		     lockout_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE lockout_until END,
		     updated_at = $4
		 WHERE id = $1
		 RETURNING failed_login_attempts`,
		id, maxFailures, lockedUntil, at).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return attempts, err
}

// ResetLoginFailures clears the failure counter and any lockout.
func (r *PostgresRepository) ResetLoginFailures(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities
		 SET failed_login_attempts = 0, lockout_until = NULL, updated_at = $2
		 WHERE id = $1`,
		id, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*domain.Identity, error) {
	var (
		i            domain.Identity
		email        sql.NullString
		phone        sql.NullString
		externalID   sql.NullString
		externalProv sql.NullString
		passwordHash sql.NullString
		occupation   sql.NullString
		bio          sql.NullString
		avatarURL    sql.NullString
		authProvider string
		lockoutUntil sql.NullTime
	)
	err := row.Scan(
		&i.ID, &i.DisplayName, &email, &i.EmailVerified, &phone, &i.PhoneConfirmed,
		&externalID, &externalProv, &authProvider, &passwordHash,
		&occupation, &bio, &avatarURL, &i.ProfileComplete,
		&i.FailedLoginAttempts, &lockoutUntil, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	i.Email = email.String
	i.Phone = phone.String
	i.ExternalID = externalID.String
	i.ExternalProvider = externalProv.String
	i.PasswordHash = passwordHash.String
	i.Occupation = occupation.String
	i.Bio = bio.String
	i.AvatarURL = avatarURL.String
	i.AuthProvider = domain.AuthProvider(authProvider)
	if lockoutUntil.Valid {
		t := lockoutUntil.Time
		i.LockoutUntil = &t
	}
	return &i, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
