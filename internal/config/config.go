// Package config loads the process-wide configuration once at startup.
//
// The returned Config is treated as immutable: main loads it, hands copies of
// the sub-structs to the packages that need them, and nothing writes to it
// afterwards. Provider credentials live here and never in code.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/oauth2/github"
)

// Config holds all configuration for the API server.
type Config struct {
	Port     int    `env:"PORT"      envDefault:"3333"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// DatabaseURL selects the Postgres backend when set. Otherwise the
	// SQLite file at DBPath is used.
	DatabaseURL string `env:"DATABASE_URL"`
	DBPath      string `env:"DB_PATH" envDefault:"data/saas.db"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	Session Session
	GitHub  Provider `envPrefix:"GITHUB_"`
}

// Session configures the SessionIssuer.
type Session struct {
	JWTSecret string        `env:"JWT_SECRET,required,notEmpty"`
	TTL       time.Duration `env:"SESSION_TTL" envDefault:"168h"`
}

// Provider holds the credentials and endpoints of one identity provider.
type Provider struct {
	ClientID     string        `env:"CLIENT_ID"`
	ClientSecret string        `env:"CLIENT_SECRET"`
	RedirectURI  string        `env:"REDIRECT_URI" envDefault:"http://localhost:3000/api/auth/callback"`
	AuthURL      string        `env:"AUTH_URL"`
	TokenURL     string        `env:"TOKEN_URL"`
	ProfileURL   string        `env:"PROFILE_URL" envDefault:"https://api.github.com/user"`
	Scopes       []string      `env:"SCOPES" envSeparator:"," envDefault:"user:email"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Enabled reports whether the provider has credentials configured.
func (p Provider) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}

	// Endpoint defaults come from x/oauth2 so they stay in sync with upstream.
	if cfg.GitHub.AuthURL == "" {
		cfg.GitHub.AuthURL = github.Endpoint.AuthURL
	}
	if cfg.GitHub.TokenURL == "" {
		cfg.GitHub.TokenURL = github.Endpoint.TokenURL
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if len(c.Session.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.GitHub.Timeout <= 0 {
		errs = append(errs, errors.New("GITHUB_TIMEOUT must be positive"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog.Level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
