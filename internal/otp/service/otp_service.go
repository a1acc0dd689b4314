// Package service implements the phone verification challenge lifecycle:
// issue a code under a resend cooldown, verify it under an attempt cap, and
// hand the verified phone to identity reconciliation for a session.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"roomly/identity/internal/audit"
	"roomly/identity/internal/autherr"
	"roomly/identity/internal/devotp"
	identsvc "roomly/identity/internal/identity/service"
	"roomly/identity/internal/otp"
	"roomly/identity/internal/otp/domain"
	"roomly/identity/internal/otp/repository"
	"roomly/identity/internal/otp/sms"
)

// dispatchTimeout caps a single background SMS send.
const dispatchTimeout = 15 * time.Second

// PhoneAuthenticator turns a verified phone into an authenticated session.
type PhoneAuthenticator interface {
	SyncVerifiedPhone(ctx context.Context, phone string) (*identsvc.AuthResult, error)
}

// RequestResult is returned from RequestOtp. The code itself is never in it.
type RequestResult struct {
	RequestID string
	ExpiresAt time.Time
}

// Service drives challenge issue and verification.
type Service struct {
	repo    repository.Repository
	phones  PhoneAuthenticator
	sender  sms.Sender
	dev     devotp.Store // nil unless dev code echo is enabled
	emitter audit.Emitter
	log     *zap.Logger

	codeLength     int
	expiry         time.Duration
	maxAttempts    int
	resendCooldown time.Duration

	nowF func() time.Time
	idF  func() string
}

// NewService wires the challenge service. dev and emitter may be nil.
func NewService(repo repository.Repository, phones PhoneAuthenticator, sender sms.Sender, dev devotp.Store, emitter audit.Emitter, log *zap.Logger, codeLength int, expiry time.Duration, maxAttempts int, resendCooldown time.Duration) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:           repo,
		phones:         phones,
		sender:         sender,
		dev:            dev,
		emitter:        emitter,
		log:            log,
		codeLength:     codeLength,
		expiry:         expiry,
		maxAttempts:    maxAttempts,
		resendCooldown: resendCooldown,
		nowF:           func() time.Time { return time.Now().UTC() },
		idF:            func() string { return uuid.New().String() },
	}
}

// RequestOtp creates a challenge for the phone and dispatches the code over
// SMS. A repeat request inside the resend cooldown is rejected; the cooldown
// is measured from the last send for that phone regardless of outcome.
// Dispatch is best effort and asynchronous: gateway failures are logged, the
// challenge stands, and the caller can retry after the cooldown.
func (s *Service) RequestOtp(ctx context.Context, phone string) (*RequestResult, error) {
	normalized, err := identsvc.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	now := s.nowF()
	latest, err := s.repo.LatestByPhone(ctx, normalized)
	if err != nil {
		return nil, autherr.Internal(err)
	}
	if latest != nil && now.Sub(latest.LastSentAt) < s.resendCooldown {
		return nil, autherr.E(autherr.KindRateLimited, "code recently sent, retry later")
	}

	code, err := otp.GenerateCode(s.codeLength)
	if err != nil {
		return nil, autherr.Internal(err)
	}
	salt, err := otp.NewSalt()
	if err != nil {
		return nil, autherr.Internal(err)
	}

	ch := &domain.Challenge{
		ID:         s.idF(),
		Phone:      normalized,
		RequestID:  s.idF(),
		CodeHash:   otp.HashCode(code, salt),
		Salt:       salt,
		Channel:    domain.ChannelSMS,
		ExpiresAt:  now.Add(s.expiry),
		LastSentAt: now,
		CreatedAt:  now,
	}
	if err := s.repo.Create(ctx, ch); err != nil {
		return nil, autherr.Internal(err)
	}

	if s.dev != nil {
		s.dev.Put(ctx, ch.RequestID, code, ch.ExpiresAt)
	}
	s.dispatch(ch.Phone, code, ch.RequestID)

	audit.EmitAsync(s.emitter, s.log, audit.NewEvent(audit.ActionOtpRequested, "", now))
	return &RequestResult{RequestID: ch.RequestID, ExpiresAt: ch.ExpiresAt}, nil
}

// dispatch sends the code in the background, detached from the request
// context so a cancelled request does not abort an in-flight send.
func (s *Service) dispatch(phone, code, requestID string) {
	if s.sender == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := s.sender.SendCode(ctx, phone, code); err != nil {
			s.log.Warn("sms dispatch failed",
				zap.String("request_id", requestID),
				zap.Error(err))
		}
	}()
}

// VerifyOtp checks the submitted code against the challenge addressed by
// requestID and phone. The attempt is counted atomically before the code
// comparison, so the attempt cap holds under concurrent submissions, and a
// challenge is consumable exactly once. On success the phone is reconciled to
// an Identity and a session is opened.
//
// Callers facing untrusted clients should collapse the failure kinds
// (NotFound, Expired, Used, AttemptsExceeded, InvalidCode) into one generic
// response; the distinct kinds exist for internal consumers and tests.
func (s *Service) VerifyOtp(ctx context.Context, requestID, phone, code string) (*identsvc.AuthResult, error) {
	normalized, err := identsvc.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	if requestID == "" || code == "" {
		return nil, autherr.E(autherr.KindValidation, "request_id and code are required")
	}

	ch, err := s.repo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, autherr.Internal(err)
	}
	if ch == nil || ch.Phone != normalized {
		return nil, autherr.E(autherr.KindNotFound, "challenge not found")
	}

	now := s.nowF()
	switch {
	case ch.Used:
		return nil, autherr.E(autherr.KindUsed, "code already used")
	case ch.Expired(now):
		return nil, autherr.E(autherr.KindExpired, "code expired")
	case ch.AttemptCount >= s.maxAttempts:
		return nil, autherr.E(autherr.KindAttemptsExceeded, "too many attempts")
	}

	_, admitted, err := s.repo.RegisterAttempt(ctx, ch.ID, s.maxAttempts)
	if err != nil {
		return nil, autherr.Internal(err)
	}
	if !admitted {
		// Raced to the cap or consumed since the read above.
		return nil, autherr.E(autherr.KindAttemptsExceeded, "too many attempts")
	}

	if !otp.CodeEqual(code, ch.Salt, ch.CodeHash) {
		audit.EmitAsync(s.emitter, s.log, audit.NewEvent(audit.ActionOtpRejected, "", now))
		return nil, autherr.E(autherr.KindInvalidCode, "incorrect code")
	}

	consumed, err := s.repo.MarkUsed(ctx, ch.ID, now)
	if err != nil {
		return nil, autherr.Internal(err)
	}
	if !consumed {
		return nil, autherr.E(autherr.KindUsed, "code already used")
	}

	result, err := s.phones.SyncVerifiedPhone(ctx, normalized)
	if err != nil {
		return nil, err
	}
	audit.EmitAsync(s.emitter, s.log, audit.NewEvent(audit.ActionOtpVerified, result.Identity.ID, now))
	return result, nil
}
