// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without a C toolchain. ":memory:" gives each test its own throwaway
// database.
//
// CONNECTIONS:
// The pool is capped at one connection. SQLite allows a single writer, and an
// in-memory database exists per connection, so one connection keeps both file
// and ":memory:" databases consistent. Transactions therefore serialize; the
// UNIQUE indexes still guard identity rows against any other writer.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/sakif/saas-rbac/internal/apperror"
	"github.com/sakif/saas-rbac/internal/repository"
)

// querier is the subset of *sql.DB and *sql.Tx the repository methods use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a sql.DB connection pool and provides repository methods.
// Inside WithinTx, q is the transaction instead of the pool.
type DB struct {
	conn *sql.DB
	q    querier
	inTx bool
}

var _ repository.IdentityStore = (*DB)(nil)

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/saas.db"  → file-based database (persistent)
//   - ":memory:"      → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	db := &DB{conn: conn, q: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// WithinTx runs fn inside a single transaction. Nested calls reuse the
// outer transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(tx repository.IdentityStore) error) error {
	if db.inTx {
		return fn(db)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	if err := fn(&DB{conn: db.conn, q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("sqlite: rolling back: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: committing: %w", errConflict("transaction", "commit", err))
		}
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// Truncate deletes every user and account. Used by the seed command.
func (db *DB) Truncate(ctx context.Context) error {
	return db.WithinTx(ctx, func(tx repository.IdentityStore) error {
		q := tx.(*DB).q
		if _, err := q.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
			return fmt.Errorf("sqlite: truncating accounts: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM users`); err != nil {
			return fmt.Errorf("sqlite: truncating users: %w", err)
		}
		return nil
	})
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT,
			email         TEXT NOT NULL UNIQUE,
			avatar_url    TEXT,
			password_hash TEXT,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// One row per external identity, and one identity per provider per user.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id                  TEXT PRIMARY KEY,
			provider            TEXT NOT NULL,
			provider_account_id TEXT NOT NULL,
			user_id             TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (provider, provider_account_id),
			UNIQUE (provider, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating accounts table: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func errConflict(resource, id string, cause error) error {
	e := apperror.Conflict(resource, id)
	e.Cause = cause
	return e
}
