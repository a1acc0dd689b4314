package domain

import "time"

// Channel names the delivery route for a challenge code.
type Channel string

const (
	ChannelSMS Channel = "sms"
)

// Challenge represents a phone verification challenge (otp_challenges table).
// The row is retained after use or exhaustion; Used, AttemptCount, and
// ExpiresAt make the terminal state readable without a status column.
type Challenge struct {
	ID           string
	Phone        string
	RequestID    string // opaque handle returned to the caller
	CodeHash     string // SHA-256 of Salt||code, hex
	Salt         string
	Channel      Channel
	ExpiresAt    time.Time
	AttemptCount int
	Used         bool
	UsedAt       *time.Time
	LastSentAt   time.Time
	CreatedAt    time.Time
}

// Expired reports whether the challenge is past its expiry at the given time.
// A code submitted exactly at the expiry instant is still valid.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
