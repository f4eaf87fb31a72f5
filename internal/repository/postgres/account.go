package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/saas-rbac/internal/apperror"
	"github.com/sakif/saas-rbac/internal/model"
)

const accountColumns = `id, provider, provider_account_id, user_id, created_at`

// CreateAccount links an external identity to a user. Both uniqueness keys
// surface as apperror.ErrConflict.
func (db *DB) CreateAccount(ctx context.Context, account *model.Account) error {
	account.ID = xid.New().String()
	account.CreatedAt = time.Now().UTC()

	_, err := db.q.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		account.ID,
		string(account.Provider),
		account.ProviderAccountID,
		account.UserID,
		account.CreatedAt,
	)
	if err != nil {
		key := string(account.Provider) + ":" + account.ProviderAccountID
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: inserting account: %w", errConflict("account", key, err))
		}
		return fmt.Errorf("postgres: inserting account %s: %w", key, err)
	}
	return nil
}

func (db *DB) FindAccount(ctx context.Context, provider model.Provider, providerAccountID string) (*model.Account, error) {
	a, err := scanAccount(db.q.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE provider = $1 AND provider_account_id = $2`,
		string(provider), providerAccountID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("account", string(provider)+":"+providerAccountID)
		}
		return nil, fmt.Errorf("postgres: getting account: %w", err)
	}
	return a, nil
}

func (db *DB) FindAccountByUser(ctx context.Context, provider model.Provider, userID string) (*model.Account, error) {
	a, err := scanAccount(db.q.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE provider = $1 AND user_id = $2`,
		string(provider), userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("account", string(provider)+":user:"+userID)
		}
		return nil, fmt.Errorf("postgres: getting account for user %s: %w", userID, err)
	}
	return a, nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	var provider string
	if err := row.Scan(&a.ID, &provider, &a.ProviderAccountID, &a.UserID, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Provider = model.Provider(provider)
	return &a, nil
}
