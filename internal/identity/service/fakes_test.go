package service

import (
	"context"
	"sync"
	"time"

	"roomly/identity/internal/identity/domain"
	"roomly/identity/internal/identity/repository"
	"roomly/identity/internal/security"
)

// fakeRepo is an in-memory repository.Repository enforcing the same
// uniqueness rules as the real schema.
type fakeRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Identity

	// createHook runs inside Create before the uniqueness check, used to
	// simulate a concurrent writer sneaking in first.
	createHook func()
	// confirmHook runs inside ConfirmPhone before the uniqueness check.
	confirmHook func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{m: make(map[string]*domain.Identity)}
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i, ok := f.m[id]; ok {
		cp := *i
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeRepo) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, i := range f.m {
		if i.Email != "" && i.Email == email {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) GetByPhone(ctx context.Context, phone string, confirmed bool) (*domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, i := range f.m {
		if i.Phone == phone && i.PhoneConfirmed == confirmed {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) GetByExternal(ctx context.Context, provider, externalID string) (*domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, i := range f.m {
		if i.ExternalProvider == provider && i.ExternalID == externalID && externalID != "" {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) Create(ctx context.Context, id *domain.Identity) error {
	if f.createHook != nil {
		f.createHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.m {
		if id.Email != "" && existing.Email == id.Email {
			return repository.ErrDuplicate
		}
		if id.PhoneConfirmed && existing.PhoneConfirmed && existing.Phone == id.Phone {
			return repository.ErrDuplicate
		}
		if id.ExternalID != "" && existing.ExternalProvider == id.ExternalProvider && existing.ExternalID == id.ExternalID {
			return repository.ErrDuplicate
		}
	}
	cp := *id
	f.m[id.ID] = &cp
	return nil
}

func (f *fakeRepo) ConfirmPhone(ctx context.Context, id string, at time.Time) error {
	if f.confirmHook != nil {
		f.confirmHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.m[id]
	if !ok {
		return nil
	}
	for _, existing := range f.m {
		if existing.ID != id && existing.PhoneConfirmed && existing.Phone == target.Phone {
			return repository.ErrDuplicate
		}
	}
	target.PhoneConfirmed = true
	target.UpdatedAt = at
	return nil
}

func (f *fakeRepo) AttachExternal(ctx context.Context, id, provider, externalID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.m {
		if existing.ID != id && existing.ExternalProvider == provider && existing.ExternalID == externalID {
			return repository.ErrDuplicate
		}
	}
	if target, ok := f.m[id]; ok {
		target.ExternalProvider = provider
		target.ExternalID = externalID
		target.UpdatedAt = at
	}
	return nil
}

func (f *fakeRepo) UpdateDisplayFields(ctx context.Context, id, name, avatarURL string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if target, ok := f.m[id]; ok {
		target.DisplayName = name
		target.AvatarURL = avatarURL
		target.UpdatedAt = at
	}
	return nil
}

func (f *fakeRepo) CompleteProfile(ctx context.Context, id, name, occupation, bio string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if target, ok := f.m[id]; ok {
		target.DisplayName = name
		target.Occupation = occupation
		target.Bio = bio
		target.ProfileComplete = true
		target.UpdatedAt = at
	}
	return nil
}

func (f *fakeRepo) SetEmail(ctx context.Context, id, email string, verified bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.m {
		if existing.ID != id && existing.Email == email {
			return repository.ErrDuplicate
		}
	}
	if target, ok := f.m[id]; ok {
		target.Email = email
		target.EmailVerified = verified
		target.UpdatedAt = at
	}
	return nil
}

func (f *fakeRepo) RegisterLoginFailure(ctx context.Context, id string, maxFailures int, lockedUntil, at time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.m[id]
	if !ok {
		return 0, nil
	}
	target.FailedLoginAttempts++
	if target.FailedLoginAttempts >= maxFailures {
		lu := lockedUntil
		target.LockoutUntil = &lu
	}
	target.UpdatedAt = at
	return target.FailedLoginAttempts, nil
}

func (f *fakeRepo) ResetLoginFailures(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if target, ok := f.m[id]; ok {
		target.FailedLoginAttempts = 0
		target.LockoutUntil = nil
		target.UpdatedAt = at
	}
	return nil
}

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.m)
}

func (f *fakeRepo) get(id string) *domain.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i, ok := f.m[id]; ok {
		cp := *i
		return &cp
	}
	return nil
}

var _ repository.Repository = (*fakeRepo)(nil)

// fakeTokens issues deterministic tokens.
type fakeTokens struct {
	mu     sync.Mutex
	issued []string
	err    error
}

func (f *fakeTokens) CreateSession(subject, email, name string) (string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	f.issued = append(f.issued, subject)
	return "token-for-" + subject, time.Now().Add(time.Hour), nil
}

func (f *fakeTokens) ValidateAndDecode(token string) (*security.SessionClaims, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &security.SessionClaims{}, nil
}

var _ Tokens = (*fakeTokens)(nil)

func newTestService(repo *fakeRepo) (*Service, *fakeTokens) {
	tokens := &fakeTokens{}
	rec := NewReconciler(repo)
	svc := NewService(repo, rec, security.NewHasher(4), tokens, nil, nil, 5, 15*time.Minute)
	return svc, tokens
}
