package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars!!")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3333, cfg.Port)
	assert.Equal(t, "data/saas.db", cfg.DBPath)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 10*time.Second, cfg.GitHub.Timeout)
	assert.Equal(t, "https://github.com/login/oauth/access_token", cfg.GitHub.TokenURL)
	assert.Equal(t, "https://github.com/login/oauth/authorize", cfg.GitHub.AuthURL)
	assert.Equal(t, "https://api.github.com/user", cfg.GitHub.ProfileURL)
	assert.Equal(t, []string{"user:email"}, cfg.GitHub.Scopes)
	assert.False(t, cfg.GitHub.Enabled())
}

func TestLoad_GitHubCredentials(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars!!")
	t.Setenv("GITHUB_CLIENT_ID", "client-id")
	t.Setenv("GITHUB_CLIENT_SECRET", "client-secret")
	t.Setenv("GITHUB_TOKEN_URL", "http://127.0.0.1:9999/token")
	t.Setenv("GITHUB_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.GitHub.Enabled())
	assert.Equal(t, "client-id", cfg.GitHub.ClientID)
	assert.Equal(t, "http://127.0.0.1:9999/token", cfg.GitHub.TokenURL)
	assert.Equal(t, 2*time.Second, cfg.GitHub.Timeout)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoad_NegativeTimeout(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars!!")
	t.Setenv("GITHUB_TIMEOUT", "-1s")

	_, err := Load()
	assert.ErrorContains(t, err, "GITHUB_TIMEOUT")
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Config{LogLevel: tt.in}.SlogLevel())
		})
	}
}
