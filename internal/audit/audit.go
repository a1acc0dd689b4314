// Package audit emits authentication audit events to a Kafka topic.
// Emission is best-effort: a broker outage never fails the auth flow.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Actions recorded on the audit topic.
const (
	ActionOtpRequested     = "otp.requested"
	ActionOtpVerified      = "otp.verified"
	ActionOtpRejected      = "otp.rejected"
	ActionRegister         = "auth.register"
	ActionLogin            = "auth.login"
	ActionLoginFailed      = "auth.login_failed"
	ActionLockout          = "auth.lockout"
	ActionExternalSync     = "auth.external_sync"
	ActionProfileCompleted = "auth.profile_completed"
)

// Event is a single audit record. Subject is the identity id when known.
// Metadata must not carry secrets: no codes, no password material.
type Event struct {
	ID       string            `json:"id"`
	Action   string            `json:"action"`
	Subject  string            `json:"subject,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	At       time.Time         `json:"at"`
}

// NewEvent returns an Event with a fresh id and the given occurrence time.
func NewEvent(action, subject string, at time.Time) Event {
	return Event{ID: uuid.New().String(), Action: action, Subject: subject, At: at}
}

// Emitter publishes audit events. Callers use it best-effort: log and ignore
// errors.
type Emitter interface {
	Emit(ctx context.Context, e Event) error
	Close() error
}

// NopEmitter discards events. Used when no brokers are configured.
type NopEmitter struct{}

func (NopEmitter) Emit(ctx context.Context, e Event) error { return nil }
func (NopEmitter) Close() error                            { return nil }

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not
// blocked. The goroutine uses context.Background() so request cancellation does
// not abort an in-flight emit. emitter may be nil.
func EmitAsync(emitter Emitter, log *zap.Logger, e Event) {
	if emitter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, e); err != nil && log != nil {
			log.Warn("audit emit failed", zap.String("action", e.Action), zap.Error(err))
		}
	}()
}
