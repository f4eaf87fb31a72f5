package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/sakif/saas-rbac/internal/apperror"
	"github.com/sakif/saas-rbac/internal/config"
	"github.com/sakif/saas-rbac/internal/model"
)

// maxResponseBytes caps how much of an upstream response body is read.
const maxResponseBytes = 1 << 20

// tokenResponse is GitHub's reply from the token endpoint.
//
// GitHub answers a bad or expired code with status 200 and an error body
// instead of the token fields, so both shapes decode into this struct.
// Pointers distinguish "absent" from "empty".
type tokenResponse struct {
	AccessToken *string `json:"access_token" validate:"required,min=1"`
	TokenType   *string `json:"token_type"   validate:"required,eq=bearer"`
	Scope       *string `json:"scope"        validate:"required"`

	Error            string `json:"error"             validate:"-"`
	ErrorDescription string `json:"error_description" validate:"-"`
}

// profileResponse is the portion of the GitHub /user API response we care about.
//
// GitHub API docs: https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type profileResponse struct {
	ID        externalID `json:"id"         validate:"required"`
	Name      *string    `json:"name"`
	Email     *string    `json:"email"      validate:"omitempty,email"`
	AvatarURL string     `json:"avatar_url" validate:"required,url"`
}

// externalID accepts a JSON integer or a JSON string and keeps it as a string.
// GitHub sends a number; other providers send opaque strings.
type externalID string

func (id *externalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = externalID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("id must be an integer or a string, got %s", data)
	}
	*id = externalID(strconv.FormatInt(n, 10))
	return nil
}

// GitHubProvider talks to GitHub for the Authorization Code flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. The browser is sent to GitHub's consent page (AuthURL).
//  2. GitHub redirects back to the web client with a short-lived "code".
//  3. The client posts the code to POST /sessions/github.
//  4. Exchange trades the code for an access token (server-to-server, with
//     the client secret).
//  5. FetchProfile calls GitHub's /user API with that token.
//
// The access token lives only for the duration of one request. It is never
// stored, logged, or handed back to the client.
type GitHubProvider struct {
	cfg      config.Provider
	oauth    *oauth2.Config
	client   *http.Client
	validate *validator.Validate
	logger   *slog.Logger
}

// NewGitHubProvider builds a provider from immutable config. A nil client
// gets an otelhttp-instrumented client bounded by cfg.Timeout.
func NewGitHubProvider(cfg config.Provider, client *http.Client, logger *slog.Logger) *GitHubProvider {
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &GitHubProvider{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		client:   client,
		validate: newValidator(),
		logger:   logger,
	}
}

// Provider identifies the accounts this provider produces.
func (p *GitHubProvider) Provider() model.Provider {
	return model.ProviderGitHub
}

// AuthURL returns the consent page URL to redirect the browser to.
//
// STATE PARAMETER:
// The state is a random string the client keeps and compares on the way
// back, so a forged callback cannot complete someone else's flow.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for an access token.
//
// The request is
//
//	POST <token-url>?client_id=..&client_secret=..&redirect_uri=..&code=..
//	Accept: application/json
//
// Failures:
//   - malformed or error payload → apperror.ErrValidation
//   - non-2xx or network failure → apperror.ErrUpstream
//   - deadline expiry            → apperror.ErrUpstreamTimeout
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	u, err := url.Parse(p.cfg.TokenURL)
	if err != nil {
		return "", fmt.Errorf("auth: parsing token url: %w", err)
	}
	q := u.Query()
	q.Set("client_id", p.cfg.ClientID)
	q.Set("client_secret", p.cfg.ClientSecret)
	q.Set("redirect_uri", p.cfg.RedirectURI)
	q.Set("code", code)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("auth: building token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, status, err := readResponse(p.client, req)
	if err != nil {
		return "", upstreamFailure("token exchange", err)
	}
	if status < 200 || status > 299 {
		p.logger.Warn("token endpoint rejected exchange", slog.Int("status", status))
		return "", apperror.Upstream(fmt.Sprintf("token endpoint returned status %d", status), nil)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", apperror.ValidationFailed("token", "token response is not a JSON object")
	}
	if tr.Error != "" {
		msg := tr.ErrorDescription
		if msg == "" {
			msg = tr.Error
		}
		return "", apperror.ValidationFailed("code", "provider rejected code: "+msg)
	}
	if err := p.validate.Struct(tr); err != nil {
		return "", validationError("token response", err)
	}

	return *tr.AccessToken, nil
}

// FetchProfile calls the profile endpoint with accessToken as a bearer
// credential and returns the validated profile.
//
// oauth2.NewClient wraps p.client (passed through the context) in a
// transport that adds the "Authorization: Bearer <token>" header.
func (p *GitHubProvider) FetchProfile(ctx context.Context, accessToken string) (*model.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.ProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, status, err := readResponse(client, req)
	if err != nil {
		return nil, upstreamFailure("profile fetch", err)
	}
	if status < 200 || status > 299 {
		p.logger.Warn("profile endpoint rejected request", slog.Int("status", status))
		return nil, apperror.Upstream(fmt.Sprintf("profile endpoint returned status %d", status), nil)
	}

	var pr profileResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, apperror.ValidationFailed("profile", "profile response is malformed: "+err.Error())
	}

	// GitHub sends "" as well as null for unset fields.
	if pr.Name != nil && strings.TrimSpace(*pr.Name) == "" {
		pr.Name = nil
	}
	if pr.Email != nil && *pr.Email == "" {
		pr.Email = nil
	}

	if err := p.validate.Struct(pr); err != nil {
		return nil, validationError("profile response", err)
	}
	if pr.Email == nil {
		return nil, apperror.MissingEmail("provider profile has no email address")
	}

	return &model.Profile{
		ExternalID: string(pr.ID),
		Name:       pr.Name,
		Email:      pr.Email,
		AvatarURL:  pr.AvatarURL,
	}, nil
}

// readResponse sends req and reads at most maxResponseBytes of the body.
func readResponse(client *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// upstreamFailure classifies a transport error. The *url.Error wrapper is
// dropped because its URL carries the client secret.
func upstreamFailure(op string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperror.UpstreamTimeout(op+" timed out", err)
	}
	return apperror.Upstream(op+" failed", err)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names so messages match what the provider sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError turns the first validator failure into an AppError.
func validationError(what string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperror.ValidationFailed(fe.Field(),
			fmt.Sprintf("%s: field %s failed %q check", what, fe.Field(), fe.Tag()))
	}
	return apperror.ValidationFailed("", what+": "+err.Error())
}
