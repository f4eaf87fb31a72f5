package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/saas-rbac/internal/apperror"
	"github.com/sakif/saas-rbac/internal/model"
	"github.com/sakif/saas-rbac/internal/repository"
)

// maxLinkAttempts bounds how often a resolution is retried after losing a
// uniqueness race to a concurrent sign-in.
const maxLinkAttempts = 3

// Resolution says which arm of find-or-create produced the user.
type Resolution int

const (
	ResolutionExisting Resolution = iota + 1
	ResolutionCreated
)

func (r Resolution) String() string {
	switch r {
	case ResolutionExisting:
		return "existing"
	case ResolutionCreated:
		return "created"
	default:
		return "unknown"
	}
}

// LinkResult is the local user an external identity resolved to.
type LinkResult struct {
	UserID     string
	Resolution Resolution
}

// errLinkedElsewhere marks a user that already holds a different identity on
// the same provider. Retrying cannot fix it.
var errLinkedElsewhere = errors.New("user already linked to another identity on this provider")

// IdentityLinker maps a provider profile to exactly one local user and one
// Account row.
//
// RESOLUTION ORDER:
//  1. Account (provider, externalID) exists → its user, done.
//  2. In one transaction: user by email, or a new user; then the Account for
//     this identity, or a new one.
//
// Step 1 keeps a returning identity on its user even after the email changed
// upstream. Step 2 runs atomically, so a failed Account insert never leaves a
// new user behind.
//
// CONCURRENCY:
// Two first sign-ins of the same identity race on the UNIQUE indexes. The
// loser gets apperror.ErrConflict, its transaction rolls back, and the whole
// resolution runs again; the second pass finds the winner's rows in step 1.
type IdentityLinker struct {
	store  repository.IdentityStore
	logger *slog.Logger
}

func NewIdentityLinker(store repository.IdentityStore, logger *slog.Logger) *IdentityLinker {
	return &IdentityLinker{store: store, logger: logger}
}

// Link resolves profile to a local user ID, creating the user and Account
// rows as needed.
func (l *IdentityLinker) Link(ctx context.Context, provider model.Provider, profile *model.Profile) (*LinkResult, error) {
	if profile == nil || profile.ExternalID == "" {
		return nil, apperror.ValidationFailed("id", "profile has no external id")
	}
	if profile.Email == nil || *profile.Email == "" {
		return nil, apperror.MissingEmail("provider profile has no email address")
	}

	var lastErr error
	for attempt := 1; attempt <= maxLinkAttempts; attempt++ {
		result, err := l.resolve(ctx, provider, profile)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, apperror.ErrConflict) || errors.Is(err, errLinkedElsewhere) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("service/identity: %w", ctx.Err())
		}

		lastErr = err
		l.logger.Debug("identity link lost a uniqueness race, retrying",
			slog.String("provider", provider.Slug()),
			slog.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("service/identity: giving up after %d attempts: %w", maxLinkAttempts, lastErr)
}

func (l *IdentityLinker) resolve(ctx context.Context, provider model.Provider, profile *model.Profile) (*LinkResult, error) {
	account, err := l.store.FindAccount(ctx, provider, profile.ExternalID)
	switch {
	case err == nil:
		user, err := l.store.GetUserByID(ctx, account.UserID)
		if err != nil {
			return nil, fmt.Errorf("service/identity: loading linked user %s: %w", account.UserID, err)
		}
		if err := refreshProfile(ctx, l.store, user, profile); err != nil {
			return nil, err
		}
		return &LinkResult{UserID: user.ID, Resolution: ResolutionExisting}, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/identity: finding account: %w", err)
	}

	var result *LinkResult
	err = l.store.WithinTx(ctx, func(tx repository.IdentityStore) error {
		user, resolution, err := findOrCreateUser(ctx, tx, profile)
		if err != nil {
			return err
		}

		account, err := tx.FindAccount(ctx, provider, profile.ExternalID)
		switch {
		case err == nil:
			if account.UserID != user.ID {
				// Linked to someone else since step 1. Roll back and let the
				// retry take the fast path to the winner.
				return apperror.Conflict("account", string(provider)+":"+profile.ExternalID)
			}
		case errors.Is(err, apperror.ErrNotFound):
			if err := linkAccount(ctx, tx, provider, profile, user); err != nil {
				return err
			}
		default:
			return fmt.Errorf("service/identity: finding account: %w", err)
		}

		if resolution == ResolutionExisting {
			if err := refreshProfile(ctx, tx, user, profile); err != nil {
				return err
			}
		}

		result = &LinkResult{UserID: user.ID, Resolution: resolution}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("identity linked",
		slog.String("provider", provider.Slug()),
		slog.String("userID", result.UserID),
		slog.String("resolution", result.Resolution.String()),
	)
	return result, nil
}

func findOrCreateUser(ctx context.Context, tx repository.IdentityStore, profile *model.Profile) (*model.User, Resolution, error) {
	user, err := tx.FindUserByEmail(ctx, *profile.Email)
	if err == nil {
		return user, ResolutionExisting, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, 0, fmt.Errorf("service/identity: finding user by email: %w", err)
	}

	avatar := profile.AvatarURL
	user = &model.User{
		Name:      profile.Name,
		Email:     *profile.Email,
		AvatarURL: &avatar,
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		return nil, 0, fmt.Errorf("service/identity: creating user: %w", err)
	}
	return user, ResolutionCreated, nil
}

func linkAccount(ctx context.Context, tx repository.IdentityStore, provider model.Provider, profile *model.Profile, user *model.User) error {
	held, err := tx.FindAccountByUser(ctx, provider, user.ID)
	switch {
	case err == nil && held.ProviderAccountID != profile.ExternalID:
		return apperror.Wrap(apperror.ErrConflict,
			fmt.Sprintf("%s is already linked to a different %s account", user.Email, provider.Slug()),
			errLinkedElsewhere)
	case err != nil && !errors.Is(err, apperror.ErrNotFound):
		return fmt.Errorf("service/identity: finding account for user: %w", err)
	}

	account := &model.Account{
		Provider:          provider,
		ProviderAccountID: profile.ExternalID,
		UserID:            user.ID,
	}
	if err := tx.CreateAccount(ctx, account); err != nil {
		return fmt.Errorf("service/identity: creating account: %w", err)
	}
	return nil
}

// refreshProfile copies name and avatar from the provider onto user when they
// changed. A missing upstream name keeps the stored one. Email is never
// rewritten.
func refreshProfile(ctx context.Context, users repository.UserRepository, user *model.User, profile *model.Profile) error {
	changed := false
	if profile.Name != nil && (user.Name == nil || *user.Name != *profile.Name) {
		name := *profile.Name
		user.Name = &name
		changed = true
	}
	if profile.AvatarURL != "" && (user.AvatarURL == nil || *user.AvatarURL != profile.AvatarURL) {
		avatar := profile.AvatarURL
		user.AvatarURL = &avatar
		changed = true
	}
	if !changed {
		return nil
	}

	if err := users.UpdateUserProfile(ctx, user); err != nil {
		return fmt.Errorf("service/identity: refreshing profile of user %s: %w", user.ID, err)
	}
	return nil
}
