package service

import (
	"context"
	"sync"
	"time"

	"roomly/identity/internal/devotp"
	iddomain "roomly/identity/internal/identity/domain"
	identsvc "roomly/identity/internal/identity/service"
	"roomly/identity/internal/otp/domain"
	"roomly/identity/internal/otp/repository"
)

// fakeChallengeRepo is an in-memory repository.Repository with the same
// atomic semantics as the SQL implementation.
type fakeChallengeRepo struct {
	mu    sync.Mutex
	byID  map[string]*domain.Challenge
	order []string // creation order, for LatestByPhone
}

func newFakeChallengeRepo() *fakeChallengeRepo {
	return &fakeChallengeRepo{byID: make(map[string]*domain.Challenge)}
}

func (f *fakeChallengeRepo) Create(ctx context.Context, c *domain.Challenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.byID[c.ID] = &cp
	f.order = append(f.order, c.ID)
	return nil
}

func (f *fakeChallengeRepo) GetByRequestID(ctx context.Context, requestID string) (*domain.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.RequestID == requestID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeChallengeRepo) LatestByPhone(ctx context.Context, phone string) (*domain.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.order) - 1; i >= 0; i-- {
		c := f.byID[f.order[i]]
		if c.Phone == phone {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeChallengeRepo) RegisterAttempt(ctx context.Context, id string, maxAttempts int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok || c.Used || c.AttemptCount >= maxAttempts {
		return 0, false, nil
	}
	c.AttemptCount++
	return c.AttemptCount, true, nil
}

func (f *fakeChallengeRepo) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok || c.Used {
		return false, nil
	}
	c.Used = true
	t := at
	c.UsedAt = &t
	return true, nil
}

func (f *fakeChallengeRepo) get(id string) *domain.Challenge {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byID[id]; ok {
		cp := *c
		return &cp
	}
	return nil
}

var _ repository.Repository = (*fakeChallengeRepo)(nil)

// fakePhones records verified phones and returns canned sessions.
type fakePhones struct {
	mu     sync.Mutex
	synced []string
	err    error
}

func (f *fakePhones) SyncVerifiedPhone(ctx context.Context, phone string) (*identsvc.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.synced = append(f.synced, phone)
	return &identsvc.AuthResult{
		Token:                     "session-token",
		Identity:                  &iddomain.Identity{ID: "id-" + phone, Phone: phone, PhoneConfirmed: true},
		IsNewUser:                 len(f.synced) == 1,
		RequiresProfileCompletion: true,
	}, nil
}

// fakeSender records dispatched codes.
type fakeSender struct {
	mu    sync.Mutex
	sent  []sentCode
	err   error
	fired chan struct{}
}

type sentCode struct {
	phone string
	code  string
}

func newFakeSender() *fakeSender {
	return &fakeSender{fired: make(chan struct{}, 16)}
}

func (f *fakeSender) SendCode(ctx context.Context, phone, code string) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentCode{phone: phone, code: code})
	err := f.err
	f.mu.Unlock()
	f.fired <- struct{}{}
	return err
}

func (f *fakeSender) lastCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].code
}

func newTestService(repo *fakeChallengeRepo, phones *fakePhones, sender *fakeSender, dev devotp.Store) *Service {
	return NewService(repo, phones, sender, dev, nil, nil, 6, 5*time.Minute, 5, 60*time.Second)
}
