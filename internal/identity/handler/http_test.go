package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"roomly/identity/internal/identity/domain"
	"roomly/identity/internal/identity/repository"
	"roomly/identity/internal/identity/service"
	"roomly/identity/internal/security"
	"roomly/identity/internal/server/middleware"
)

// memRepo is a minimal in-memory repository for handler tests.
type memRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Identity
}

func newMemRepo() *memRepo { return &memRepo{m: make(map[string]*domain.Identity)} }

func (r *memRepo) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.m[id]; ok {
		cp := *i
		return &cp, nil
	}
	return nil, nil
}

func (r *memRepo) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.m {
		if i.Email == email {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) GetByPhone(ctx context.Context, phone string, confirmed bool) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.m {
		if i.Phone == phone && i.PhoneConfirmed == confirmed {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) GetByExternal(ctx context.Context, provider, externalID string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.m {
		if i.ExternalProvider == provider && i.ExternalID == externalID && externalID != "" {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) Create(ctx context.Context, id *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.m {
		if id.Email != "" && existing.Email == id.Email {
			return repository.ErrDuplicate
		}
	}
	cp := *id
	r.m[id.ID] = &cp
	return nil
}

func (r *memRepo) ConfirmPhone(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.m[id]; ok {
		i.PhoneConfirmed = true
	}
	return nil
}

func (r *memRepo) AttachExternal(ctx context.Context, id, provider, externalID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.m[id]; ok {
		i.ExternalProvider = provider
		i.ExternalID = externalID
	}
	return nil
}

func (r *memRepo) UpdateDisplayFields(ctx context.Context, id, name, avatarURL string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.m[id]; ok {
		i.DisplayName = name
		i.AvatarURL = avatarURL
	}
	return nil
}

func (r *memRepo) CompleteProfile(ctx context.Context, id, name, occupation, bio string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.m[id]; ok {
		i.DisplayName = name
		i.Occupation = occupation
		i.Bio = bio
		i.ProfileComplete = true
	}
	return nil
}

func (r *memRepo) SetEmail(ctx context.Context, id, email string, verified bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.m[id]; ok {
		i.Email = email
		i.EmailVerified = verified
	}
	return nil
}

func (r *memRepo) RegisterLoginFailure(ctx context.Context, id string, maxFailures int, lockedUntil, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.m[id]
	if !ok {
		return 0, nil
	}
	i.FailedLoginAttempts++
	if i.FailedLoginAttempts >= maxFailures {
		lu := lockedUntil
		i.LockoutUntil = &lu
	}
	return i.FailedLoginAttempts, nil
}

func (r *memRepo) ResetLoginFailures(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.m[id]; ok {
		i.FailedLoginAttempts = 0
		i.LockoutUntil = nil
	}
	return nil
}

var _ repository.Repository = (*memRepo)(nil)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	repo := newMemRepo()
	rec := service.NewReconciler(repo)
	svc := service.NewService(repo, rec, security.NewHasher(4), tokens, nil, nil, 5, 15*time.Minute)

	app := fiber.New()
	NewHandler(svc, nil).Register(app.Group("/v1"), middleware.RequireSession(tokens))
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, out
}

func TestRegisterLogin_HTTP(t *testing.T) {
	app := newTestApp(t)

	status, body := doJSON(t, app, "POST", "/v1/auth/register", "", fiber.Map{
		"email": "ann@x.com", "password": "password1", "name": "Ann",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("register status = %d, body = %v", status, body)
	}
	if body["token"] == nil {
		t.Error("token missing")
	}

	// Duplicate email conflicts with a stable code.
	status, body = doJSON(t, app, "POST", "/v1/auth/register", "", fiber.Map{
		"email": "ann@x.com", "password": "password2", "name": "Ann2",
	})
	if status != fiber.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", status)
	}
	if errObj := body["error"].(map[string]any); errObj["code"] != "conflict" {
		t.Errorf("error code = %v, want conflict", errObj["code"])
	}

	status, body = doJSON(t, app, "POST", "/v1/auth/login", "", fiber.Map{
		"email": "ann@x.com", "password": "password1",
	})
	if status != fiber.StatusOK {
		t.Fatalf("login status = %d, body = %v", status, body)
	}

	status, body = doJSON(t, app, "POST", "/v1/auth/login", "", fiber.Map{
		"email": "ann@x.com", "password": "wrongpass1",
	})
	if status != fiber.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", status)
	}
	if errObj := body["error"].(map[string]any); errObj["code"] != "invalid_credentials" {
		t.Errorf("error code = %v, want invalid_credentials", errObj["code"])
	}
}

func TestCompleteProfile_HTTP(t *testing.T) {
	app := newTestApp(t)

	_, reg := doJSON(t, app, "POST", "/v1/auth/register", "", fiber.Map{
		"email": "ann@x.com", "password": "password1", "name": "Ann",
	})
	token := reg["token"].(string)

	// Without a session the route is rejected.
	status, _ := doJSON(t, app, "POST", "/v1/auth/profile/complete", "", fiber.Map{"name": "Ann E."})
	if status != fiber.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", status)
	}

	status, body := doJSON(t, app, "POST", "/v1/auth/profile/complete", token, fiber.Map{
		"name": "Ann E.", "occupation": "engineer", "bio": "hi",
	})
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	user := body["user"].(map[string]any)
	if user["profile_complete"] != true {
		t.Error("profile_complete should be true")
	}
}

func TestValidate_HTTP(t *testing.T) {
	app := newTestApp(t)

	_, reg := doJSON(t, app, "POST", "/v1/auth/register", "", fiber.Map{
		"email": "ann@x.com", "password": "password1", "name": "Ann",
	})
	token := reg["token"].(string)

	status, body := doJSON(t, app, "GET", "/v1/auth/validate", token, nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["email"] != "ann@x.com" || body["name"] != "Ann" {
		t.Errorf("claims = %v", body)
	}
	if body["subject"] == "" || body["subject"] == nil {
		t.Error("subject missing")
	}
}

func TestExternalSync_HTTP(t *testing.T) {
	app := newTestApp(t)

	status, body := doJSON(t, app, "POST", "/v1/auth/external/sync", "", fiber.Map{
		"provider": "google",
		"claims":   fiber.Map{"sub": "ext-1", "email": "ann@x.com", "name": "Ann"},
	})
	if status != fiber.StatusCreated {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["is_new_user"] != true {
		t.Error("is_new_user should be true on first sync")
	}

	status, body = doJSON(t, app, "POST", "/v1/auth/external/sync", "", fiber.Map{
		"provider": "google",
		"claims":   fiber.Map{"sub": "ext-1", "email": "ann@x.com", "name": "Ann"},
	})
	if status != fiber.StatusOK {
		t.Fatalf("repeat status = %d", status)
	}
	if body["is_new_user"] != false {
		t.Error("is_new_user should be false on repeat sync")
	}
}

func TestVerifiedPhoneSync_HTTP(t *testing.T) {
	app := newTestApp(t)

	status, body := doJSON(t, app, "POST", "/v1/auth/phone/verified", "", fiber.Map{
		"phone": "+919876543210",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["requires_profile_completion"] != true {
		t.Error("fresh phone identity should require profile completion")
	}
}

func TestWriteError_InternalHidesCause(t *testing.T) {
	app := fiber.New()
	app.Get("/boom", func(c *fiber.Ctx) error {
		return WriteError(c, context.DeadlineExceeded)
	})
	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "internal_failure" || errObj["message"] != "internal failure" {
		t.Errorf("error = %v, want opaque internal failure", errObj)
	}
}
