package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/saas-rbac/internal/apperror"
	"github.com/sakif/saas-rbac/internal/model"
	"github.com/sakif/saas-rbac/internal/repository"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, false},
		{"plain error", errors.New("duplicate key"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "000001_create_users_accounts.up.sql")
	assert.Contains(t, names, "000001_create_users_accounts.down.sql")
}

// =========================================================================
// INTEGRATION TESTS
// These need a live database: TEST_DATABASE_URL=postgres://... go test
// =========================================================================

func newTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	require.NoError(t, RunMigrations(url))
	db, err := New(context.Background(), url)
	require.NoError(t, err)
	require.NoError(t, db.Truncate(context.Background()))

	t.Cleanup(func() { db.Close() })
	return db
}

func TestIdentityRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &model.User{Email: "jane@x.com"}
	require.NoError(t, db.CreateUser(ctx, user))
	require.NoError(t, db.CreateAccount(ctx, &model.Account{
		Provider:          model.ProviderGitHub,
		ProviderAccountID: "555",
		UserID:            user.ID,
	}))

	account, err := db.FindAccount(ctx, model.ProviderGitHub, "555")
	require.NoError(t, err)
	assert.Equal(t, user.ID, account.UserID)

	found, err := db.FindUserByEmail(ctx, "jane@x.com")
	require.NoError(t, err)
	assert.Nil(t, found.Name)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &model.User{Email: "dup@example.com"}))
	err := db.CreateUser(ctx, &model.User{Email: "dup@example.com"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestWithinTx_Rollback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithinTx(ctx, func(tx repository.IdentityStore) error {
		if err := tx.CreateUser(ctx, &model.User{Email: "rolled@example.com"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = db.FindUserByEmail(ctx, "rolled@example.com")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
