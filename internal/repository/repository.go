// Package repository declares the persistence contract used by the service
// layer. Implementations live in the sqlite and postgres subpackages.
//
// Error contract for every implementation:
//   - a missing row is reported as apperror.ErrNotFound
//   - a uniqueness violation is reported as apperror.ErrConflict
package repository

import (
	"context"

	"github.com/sakif/saas-rbac/internal/model"
)

type UserRepository interface {
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// CreateUser fills in ID and timestamps on the passed user.
	CreateUser(ctx context.Context, user *model.User) error
	// UpdateUserProfile rewrites name and avatar_url only.
	UpdateUserProfile(ctx context.Context, user *model.User) error
}

type AccountRepository interface {
	FindAccount(ctx context.Context, provider model.Provider, providerAccountID string) (*model.Account, error)
	FindAccountByUser(ctx context.Context, provider model.Provider, userID string) (*model.Account, error)
	// CreateAccount fills in ID and CreatedAt on the passed account.
	CreateAccount(ctx context.Context, account *model.Account) error
}

// IdentityStore is what the identity linker needs: both repositories plus a
// way to run several calls as one atomic unit.
type IdentityStore interface {
	UserRepository
	AccountRepository

	// WithinTx runs fn against a store bound to a single transaction. The
	// transaction commits if fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx IdentityStore) error) error
}
