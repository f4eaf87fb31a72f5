// Command seed wipes the configured database and loads demo data: a few
// users with bcrypt password hashes and one linked GitHub identity.
//
// Usage:
//
//	DB_PATH=data/saas.db go run ./cmd/seed
//	DATABASE_URL=postgres://... go run ./cmd/seed -password demo-pass
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"

	"github.com/sakif/saas-rbac/internal/auth"
	"github.com/sakif/saas-rbac/internal/config"
	"github.com/sakif/saas-rbac/internal/model"
	"github.com/sakif/saas-rbac/internal/repository"
	"github.com/sakif/saas-rbac/internal/server"
)

// seedConfig is the subset of config.Config the seeder needs. It is parsed
// separately so seeding works without JWT_SECRET.
type seedConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`
	DBPath      string `env:"DB_PATH" envDefault:"data/saas.db"`
}

// truncater is implemented by both repository backends.
type truncater interface {
	Truncate(ctx context.Context) error
}

type demoUser struct {
	name            string
	email           string
	githubAccountID string
	avatarURL       string
}

var demoUsers = []demoUser{
	{name: "Ada Admin", email: "admin@acme.test"},
	{name: "Manny Member", email: "member@acme.test"},
	{name: "Gina GitHub", email: "gina@acme.test", githubAccountID: "1000001", avatarURL: "https://avatars.githubusercontent.com/u/1000001"},
}

func main() {
	password := flag.String("password", "123456", "password given to every demo user")
	cost := flag.Int("cost", auth.DefaultPasswordCost, "bcrypt cost")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	var cfg seedConfig
	if err := env.Parse(&cfg); err != nil {
		logger.Error("failed to parse environment", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := server.OpenStore(ctx, config.Config{DatabaseURL: cfg.DatabaseURL, DBPath: cfg.DBPath})
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	store, ok := db.(truncater)
	if !ok {
		logger.Error("store cannot be truncated")
		os.Exit(1)
	}

	if err := run(ctx, db, store, auth.NewPasswordServiceWithCost(*cost), *password, logger); err != nil {
		logger.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("seed completed", slog.Int("users", len(demoUsers)))
}

// run wipes every table and inserts demoUsers inside one transaction.
func run(ctx context.Context, db repository.IdentityStore, wipe truncater, passwords *auth.PasswordService, password string, logger *slog.Logger) error {
	if err := wipe.Truncate(ctx); err != nil {
		return fmt.Errorf("truncating: %w", err)
	}

	hash, err := passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	return db.WithinTx(ctx, func(tx repository.IdentityStore) error {
		for _, d := range demoUsers {
			name := d.name
			user := &model.User{Name: &name, Email: d.email, PasswordHash: &hash}
			if d.avatarURL != "" {
				avatar := d.avatarURL
				user.AvatarURL = &avatar
			}
			if err := tx.CreateUser(ctx, user); err != nil {
				return fmt.Errorf("creating %s: %w", d.email, err)
			}

			if d.githubAccountID != "" {
				account := &model.Account{
					Provider:          model.ProviderGitHub,
					ProviderAccountID: d.githubAccountID,
					UserID:            user.ID,
				}
				if err := tx.CreateAccount(ctx, account); err != nil {
					return fmt.Errorf("linking %s: %w", d.email, err)
				}
			}
			logger.Info("seeded user", slog.String("email", d.email), slog.String("id", user.ID))
		}
		return nil
	})
}
