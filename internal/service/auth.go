// Package service holds the business rules of third-party sign-in.
//
//	SessionHandler (HTTP) → AuthService (flow) → IdentityProvider (GitHub)
//	                                           → IdentityLinker → IdentityStore (DB)
//	                                           → SessionIssuer (JWT)
//
// Nothing in this package knows about HTTP status codes; failures come back
// as apperror values and the handler maps them.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/saas-rbac/internal/apperror"
	"github.com/sakif/saas-rbac/internal/model"
	"github.com/sakif/saas-rbac/internal/repository"
)

// Stage is a state of one sign-in attempt.
//
//	Received → Exchanged → ProfileFetched → IdentityResolved → SessionIssued
//	    └──────────┴──────────────┴─────────────────┴──────────→ Failed
//
// There are no retries across stages; a failure at any stage ends the attempt.
type Stage string

const (
	StageReceived         Stage = "received"
	StageExchanged        Stage = "exchanged"
	StageProfileFetched   Stage = "profile_fetched"
	StageIdentityResolved Stage = "identity_resolved"
	StageSessionIssued    Stage = "session_issued"
	StageFailed           Stage = "failed"
)

// IdentityProvider is one upstream the flow can sign users in with.
// auth.GitHubProvider is the production implementation.
type IdentityProvider interface {
	Provider() model.Provider
	AuthURL(state string) string
	// Exchange is the CodeExchanger: authorization code → access token.
	Exchange(ctx context.Context, code string) (string, error)
	// FetchProfile is the ProfileFetcher: access token → validated profile.
	FetchProfile(ctx context.Context, accessToken string) (*model.Profile, error)
}

// SessionIssuer mints and verifies session tokens. auth.TokenService
// implements it.
type SessionIssuer interface {
	Issue(userID string) (string, error)
	VerifySession(token string) (string, error)
}

// AuthService runs the sign-in flow.
//
// DEPENDENCIES (injected via NewAuthService):
//   - providers  upstreams keyed by model.Provider
//   - linker     *IdentityLinker            → find-or-create user + account
//   - sessions   SessionIssuer              → session tokens
//   - users      repository.UserRepository  → profile lookups
//   - metrics    *Metrics                   → may be nil
//   - logger     *slog.Logger
type AuthService struct {
	providers map[model.Provider]IdentityProvider
	linker    *IdentityLinker
	sessions  SessionIssuer
	users     repository.UserRepository
	metrics   *Metrics
	logger    *slog.Logger
}

func NewAuthService(
	providers []IdentityProvider,
	linker *IdentityLinker,
	sessions SessionIssuer,
	users repository.UserRepository,
	metrics *Metrics,
	logger *slog.Logger,
) *AuthService {
	byName := make(map[model.Provider]IdentityProvider, len(providers))
	for _, p := range providers {
		byName[p.Provider()] = p
	}
	return &AuthService{
		providers: byName,
		linker:    linker,
		sessions:  sessions,
		users:     users,
		metrics:   metrics,
		logger:    logger,
	}
}

// AuthResult is what a successful attempt produces.
type AuthResult struct {
	UserID     string
	Token      string
	Resolution Resolution
}

// Authenticate turns an authorization code into a session token.
//
// Errors are apperror values: ErrNotFound for an unconfigured provider,
// ErrValidation / ErrMissingEmail for bad input or upstream payloads,
// ErrUpstream / ErrUpstreamTimeout for provider failures, ErrConflict when
// the identity cannot be linked. Anything else is internal.
func (s *AuthService) Authenticate(ctx context.Context, provider model.Provider, code string) (*AuthResult, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, apperror.NotFound("provider", provider.Slug())
	}

	a := s.begin(provider)

	if code == "" {
		return nil, a.fail(apperror.ValidationFailed("code", "authorization code is required"))
	}

	accessToken, err := p.Exchange(ctx, code)
	if err != nil {
		return nil, a.fail(err)
	}
	a.advance(StageExchanged)

	profile, err := p.FetchProfile(ctx, accessToken)
	if err != nil {
		return nil, a.fail(err)
	}
	a.advance(StageProfileFetched)

	link, err := s.linker.Link(ctx, provider, profile)
	if err != nil {
		return nil, a.fail(err)
	}
	a.advance(StageIdentityResolved)

	token, err := s.sessions.Issue(link.UserID)
	if err != nil {
		return nil, a.fail(fmt.Errorf("issuing session for user %s: %w", link.UserID, err))
	}
	a.advance(StageSessionIssued)
	a.succeed()

	return &AuthResult{
		UserID:     link.UserID,
		Token:      token,
		Resolution: link.Resolution,
	}, nil
}

// AuthorizeURL returns the consent page URL for provider.
func (s *AuthService) AuthorizeURL(provider model.Provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", apperror.NotFound("provider", provider.Slug())
	}
	return p.AuthURL(state), nil
}

// GetUserByID returns the user behind an authenticated session.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("session has no subject")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// VerifySession returns the user ID a session token was issued for.
func (s *AuthService) VerifySession(token string) (string, error) {
	userID, err := s.sessions.VerifySession(token)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

// attempt tracks the stage of one Authenticate call.
type attempt struct {
	s          *AuthService
	provider   string
	stage      Stage
	stageStart time.Time
}

func (s *AuthService) begin(provider model.Provider) *attempt {
	a := &attempt{
		s:          s,
		provider:   provider.Slug(),
		stage:      StageReceived,
		stageStart: time.Now(),
	}
	s.logger.Debug("auth stage", slog.String("provider", a.provider), slog.String("stage", string(a.stage)))
	return a
}

func (a *attempt) advance(next Stage) {
	now := time.Now()
	a.s.metrics.observeStage(a.provider, next, now.Sub(a.stageStart))
	a.stage = next
	a.stageStart = now
	a.s.logger.Debug("auth stage", slog.String("provider", a.provider), slog.String("stage", string(next)))
}

func (a *attempt) succeed() {
	a.s.metrics.countAttempt(a.provider, "success")
}

// fail moves the attempt to StageFailed and returns err annotated with the
// stage it failed after.
func (a *attempt) fail(err error) error {
	kind := apperror.Kind(err)
	from := a.stage
	a.stage = StageFailed
	a.s.metrics.countAttempt(a.provider, kind)

	level := slog.LevelWarn
	if kind == "internal_error" {
		level = slog.LevelError
	}
	a.s.logger.Log(context.Background(), level, "auth flow failed",
		slog.String("provider", a.provider),
		slog.String("after", string(from)),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)

	return fmt.Errorf("service/auth: %s: %w", from, err)
}
