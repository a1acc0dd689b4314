package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"roomly/identity/internal/autherr"
	"roomly/identity/internal/identity/claims"
	"roomly/identity/internal/identity/domain"
	"roomly/identity/internal/identity/repository"
)

// Reconciler maps a verified phone or an external claim set to exactly one
// Identity. All races collapse onto the repository's unique constraints: a
// duplicate write is retried as a lookup, so two concurrent callers converge
// on the same row.
type Reconciler struct {
	repo repository.Repository
	nowF func() time.Time
	idF  func() string
}

// NewReconciler returns a reconciler over the given repository.
func NewReconciler(repo repository.Repository) *Reconciler {
	return &Reconciler{
		repo: repo,
		nowF: func() time.Time { return time.Now().UTC() },
		idF:  func() string { return uuid.New().String() },
	}
}

// ReconcileVerifiedPhone resolves a phone that has just passed code
// verification to an Identity. Order: confirmed row as-is; unconfirmed legacy
// row promoted; otherwise a new identity is created. isNew is true only when
// this call created the row.
func (r *Reconciler) ReconcileVerifiedPhone(ctx context.Context, phone string) (*domain.Identity, bool, error) {
	existing, err := r.repo.GetByPhone(ctx, phone, true)
	if err != nil {
		return nil, false, autherr.Internal(err)
	}
	if existing != nil {
		return existing, false, nil
	}

	now := r.nowF()
	unconfirmed, err := r.repo.GetByPhone(ctx, phone, false)
	if err != nil {
		return nil, false, autherr.Internal(err)
	}
	if unconfirmed != nil {
		err = r.repo.ConfirmPhone(ctx, unconfirmed.ID, now)
		if errors.Is(err, repository.ErrDuplicate) {
			// Another caller confirmed a row for this phone first.
			return r.lookupConfirmedPhone(ctx, phone)
		}
		if err != nil {
			return nil, false, autherr.Internal(err)
		}
		unconfirmed.PhoneConfirmed = true
		unconfirmed.UpdatedAt = now
		return unconfirmed, false, nil
	}

	created := &domain.Identity{
		ID:             r.idF(),
		Phone:          phone,
		PhoneConfirmed: true,
		AuthProvider:   domain.AuthProviderPhone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := created.Validate(); err != nil {
		return nil, false, autherr.Internal(err)
	}
	err = r.repo.Create(ctx, created)
	if errors.Is(err, repository.ErrDuplicate) {
		return r.lookupConfirmedPhone(ctx, phone)
	}
	if err != nil {
		return nil, false, autherr.Internal(err)
	}
	return created, true, nil
}

func (r *Reconciler) lookupConfirmedPhone(ctx context.Context, phone string) (*domain.Identity, bool, error) {
	winner, err := r.repo.GetByPhone(ctx, phone, true)
	if err != nil {
		return nil, false, autherr.Internal(err)
	}
	if winner == nil {
		return nil, false, autherr.Internal(errors.New("phone reconcile: duplicate reported but no confirmed row"))
	}
	return winner, false, nil
}

// ReconcileExternal resolves an upstream-verified external claim set to an
// Identity. Resolution order: existing (provider, external id) link; then an
// email match, which links the external id onto the account; then a fresh
// identity. An email match already linked to a different external id under
// the same provider is a conflict, not a silent takeover.
func (r *Reconciler) ReconcileExternal(ctx context.Context, ext claims.External) (*domain.Identity, bool, error) {
	linked, err := r.repo.GetByExternal(ctx, ext.Provider, ext.ExternalID)
	if err != nil {
		return nil, false, autherr.Internal(err)
	}
	if linked != nil {
		if err := r.refreshDisplayFields(ctx, linked, ext); err != nil {
			return nil, false, err
		}
		return linked, false, nil
	}

	now := r.nowF()
	if ext.Email != "" {
		byEmail, err := r.repo.GetByEmail(ctx, ext.Email)
		if err != nil {
			return nil, false, autherr.Internal(err)
		}
		if byEmail != nil {
			// The (provider, external id) lookup above missed, so any link
			// already on this record belongs to a different external
			// identity, same provider or not. An identity carries one
			// external link; never overwrite it.
			if byEmail.ExternalID != "" {
				return nil, false, autherr.E(autherr.KindConflict, "account already linked to a different external identity")
			}
			err = r.repo.AttachExternal(ctx, byEmail.ID, ext.Provider, ext.ExternalID, now)
			if errors.Is(err, repository.ErrDuplicate) {
				return r.lookupExternal(ctx, ext)
			}
			if err != nil {
				return nil, false, autherr.Internal(err)
			}
			byEmail.ExternalProvider = ext.Provider
			byEmail.ExternalID = ext.ExternalID
			byEmail.UpdatedAt = now
			if err := r.refreshDisplayFields(ctx, byEmail, ext); err != nil {
				return nil, false, err
			}
			return byEmail, false, nil
		}
	}

	created := &domain.Identity{
		ID:               r.idF(),
		DisplayName:      ext.Name,
		Email:            ext.Email,
		EmailVerified:    ext.Email != "",
		ExternalID:       ext.ExternalID,
		ExternalProvider: ext.Provider,
		AuthProvider:     domain.AuthProviderExternal,
		AvatarURL:        ext.AvatarURL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := created.Validate(); err != nil {
		return nil, false, autherr.Internal(err)
	}
	err = r.repo.Create(ctx, created)
	if errors.Is(err, repository.ErrDuplicate) {
		return r.lookupExternal(ctx, ext)
	}
	if err != nil {
		return nil, false, autherr.Internal(err)
	}
	return created, true, nil
}

func (r *Reconciler) lookupExternal(ctx context.Context, ext claims.External) (*domain.Identity, bool, error) {
	winner, err := r.repo.GetByExternal(ctx, ext.Provider, ext.ExternalID)
	if err != nil {
		return nil, false, autherr.Internal(err)
	}
	if winner != nil {
		return winner, false, nil
	}
	// The duplicate was on email, raced by an unrelated signup.
	return nil, false, autherr.E(autherr.KindConflict, "email already in use")
}

// refreshDisplayFields writes name/avatar when the provider reports new
// values. Profile-completed names are owned by the user and never overwritten.
func (r *Reconciler) refreshDisplayFields(ctx context.Context, id *domain.Identity, ext claims.External) error {
	name := id.DisplayName
	if ext.Name != "" && !id.ProfileComplete {
		name = ext.Name
	}
	avatar := id.AvatarURL
	if ext.AvatarURL != "" {
		avatar = ext.AvatarURL
	}
	if name == id.DisplayName && avatar == id.AvatarURL {
		return nil
	}
	now := r.nowF()
	if err := r.repo.UpdateDisplayFields(ctx, id.ID, name, avatar, now); err != nil {
		return autherr.Internal(err)
	}
	id.DisplayName = name
	id.AvatarURL = avatar
	id.UpdatedAt = now
	return nil
}
