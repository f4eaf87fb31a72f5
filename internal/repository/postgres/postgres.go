// Package postgres implements the repository interfaces on PostgreSQL with
// pgx. The schema is managed by golang-migrate from the embedded migrations
// directory.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/saas-rbac/internal/apperror"
	"github.com/sakif/saas-rbac/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// querier is the subset of *pgxpool.Pool and pgx.Tx the repository methods use.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps a pgx connection pool. Inside WithinTx, q is the transaction.
type DB struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

var _ repository.IdentityStore = (*DB)(nil)

// New connects to databaseURL and verifies the connection.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	return &DB{pool: pool, q: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// RunMigrations applies all pending migrations to databaseURL.
func RunMigrations(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: creating migrations source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("postgres: creating migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres: running migrations: %w", err)
	}
	return nil
}

// WithinTx runs fn inside a single transaction. A unique violation aborts the
// whole transaction in Postgres, so callers retry with a fresh WithinTx.
func (db *DB) WithinTx(ctx context.Context, fn func(tx repository.IdentityStore) error) error {
	if db.inTx {
		return fn(db)
	}

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: beginning transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op returning ErrTxClosed.
	defer tx.Rollback(ctx)

	if err := fn(&DB{pool: db.pool, q: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: committing: %w", errConflict("transaction", "commit", err))
		}
		return fmt.Errorf("postgres: committing transaction: %w", err)
	}
	return nil
}

// Truncate deletes every user and account. Used by the seed command.
func (db *DB) Truncate(ctx context.Context) error {
	if _, err := db.q.Exec(ctx, `TRUNCATE accounts, users`); err != nil {
		return fmt.Errorf("postgres: truncating: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func errConflict(resource, id string, cause error) error {
	e := apperror.Conflict(resource, id)
	e.Cause = cause
	return e
}
