package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/saas-rbac/internal/auth"
	"github.com/sakif/saas-rbac/internal/model"
	"github.com/sakif/saas-rbac/internal/repository/sqlite"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer db.Close()

	passwords := auth.NewPasswordServiceWithCost(4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Running twice must not trip unique constraints.
	require.NoError(t, run(ctx, db, db, passwords, "demo-pass", logger))
	require.NoError(t, run(ctx, db, db, passwords, "demo-pass", logger))

	admin, err := db.FindUserByEmail(ctx, "admin@acme.test")
	require.NoError(t, err)
	require.NotNil(t, admin.PasswordHash)
	assert.NoError(t, passwords.Verify(*admin.PasswordHash, "demo-pass"))

	gina, err := db.FindUserByEmail(ctx, "gina@acme.test")
	require.NoError(t, err)
	account, err := db.FindAccount(ctx, model.ProviderGitHub, "1000001")
	require.NoError(t, err)
	assert.Equal(t, gina.ID, account.UserID)
}
