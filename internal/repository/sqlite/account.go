package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/saas-rbac/internal/apperror"
	"github.com/sakif/saas-rbac/internal/model"
)

const accountColumns = `id, provider, provider_account_id, user_id, created_at`

// CreateAccount links an external identity to a user.
// A second row for the same (provider, provider_account_id) or the same
// (provider, user_id) is reported as apperror.ErrConflict.
func (db *DB) CreateAccount(ctx context.Context, account *model.Account) error {
	account.ID = xid.New().String()
	account.CreatedAt = time.Now().UTC()

	_, err := db.q.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?)`,
		account.ID,
		string(account.Provider),
		account.ProviderAccountID,
		account.UserID,
		account.CreatedAt,
	)
	if err != nil {
		key := string(account.Provider) + ":" + account.ProviderAccountID
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: inserting account: %w", errConflict("account", key, err))
		}
		return fmt.Errorf("sqlite: inserting account %s: %w", key, err)
	}
	return nil
}

// FindAccount looks up the account for one external identity.
func (db *DB) FindAccount(ctx context.Context, provider model.Provider, providerAccountID string) (*model.Account, error) {
	a, err := scanAccount(db.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE provider = ? AND provider_account_id = ?`,
		string(provider), providerAccountID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account", string(provider)+":"+providerAccountID)
		}
		return nil, fmt.Errorf("sqlite: getting account: %w", err)
	}
	return a, nil
}

// FindAccountByUser returns the identity a user holds on provider.
func (db *DB) FindAccountByUser(ctx context.Context, provider model.Provider, userID string) (*model.Account, error) {
	a, err := scanAccount(db.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE provider = ? AND user_id = ?`,
		string(provider), userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account", string(provider)+":user:"+userID)
		}
		return nil, fmt.Errorf("sqlite: getting account for user %s: %w", userID, err)
	}
	return a, nil
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	var a model.Account
	var provider string
	if err := row.Scan(&a.ID, &provider, &a.ProviderAccountID, &a.UserID, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Provider = model.Provider(provider)
	return &a, nil
}
