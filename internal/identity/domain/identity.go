package domain

import (
	"errors"
	"time"
)

// Identity is the canonical reconciled account record. A confirmed phone, a set
// email, and an external id each resolve to at most one Identity; the
// repository enforces this with unique constraints.
type Identity struct {
	ID               string
	DisplayName      string // may be empty until profile completion
	Email            string // optional; unique when set
	EmailVerified    bool
	Phone            string // optional; unique once confirmed
	PhoneConfirmed   bool
	ExternalID       string // optional; unique per provider
	ExternalProvider string
	AuthProvider     AuthProvider
	PasswordHash     string // empty unless AuthProviderPassword
	Occupation       string
	Bio              string
	AvatarURL        string
	ProfileComplete  bool

	FailedLoginAttempts int
	LockoutUntil        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuthProvider records which flow first created the Identity.
type AuthProvider string

const (
	AuthProviderPassword AuthProvider = "password"
	AuthProviderPhone    AuthProvider = "phone"
	AuthProviderExternal AuthProvider = "external"
)

// Validate validates the identity for persistence.
func (i *Identity) Validate() error {
	if i.ID == "" {
		return errors.New("id is required")
	}
	switch i.AuthProvider {
	case AuthProviderPassword, AuthProviderPhone, AuthProviderExternal:
	default:
		return errors.New("unknown auth provider")
	}
	if i.AuthProvider == AuthProviderPassword && i.Email == "" {
		return errors.New("email is required for password identities")
	}
	if i.AuthProvider == AuthProviderPhone && i.Phone == "" {
		return errors.New("phone is required for phone identities")
	}
	if i.AuthProvider == AuthProviderExternal && i.ExternalID == "" {
		return errors.New("external id is required for external identities")
	}
	return nil
}

// Locked reports whether the identity is under login lockout at the given time.
func (i *Identity) Locked(now time.Time) bool {
	return i.LockoutUntil != nil && now.Before(*i.LockoutUntil)
}
