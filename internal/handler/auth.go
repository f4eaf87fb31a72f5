package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/xid"

	"github.com/sakif/saas-rbac/internal/apperror"
	"github.com/sakif/saas-rbac/internal/auth"
	"github.com/sakif/saas-rbac/internal/model"
	"github.com/sakif/saas-rbac/internal/service"
)

// maxBodyBytes caps the POST /sessions/{provider} request body.
const maxBodyBytes = 64 << 10

// AuthService is what the handler needs from service.AuthService.
type AuthService interface {
	Authenticate(ctx context.Context, provider model.Provider, code string) (*service.AuthResult, error)
	AuthorizeURL(provider model.Provider, state string) (string, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// AuthHandler serves the sign-in endpoints.
//
//   - HandleAuthorize     → redirect the browser to the provider's consent page
//   - HandleCreateSession → trade an authorization code for a session token
//   - HandleProfile       → return the signed-in user
type AuthHandler struct {
	svc      AuthService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:      svc,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateSessionRequest is the body of POST /sessions/{provider}.
type CreateSessionRequest struct {
	Code string `json:"code" validate:"required,max=512"`
}

// SessionResponse is returned with 201 Created.
type SessionResponse struct {
	Token string `json:"token"`
}

// HandleCreateSession completes third-party sign-in.
//
// HTTP: POST /sessions/{provider}   body {"code": "..."}
//
// The code arrives from the web client, which received it on the provider's
// redirect. A returning user gets a fresh token exactly like a new one.
func (h *AuthHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	provider, err := providerParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "request body must be a JSON object with a code"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, apperror.ValidationFailed("code", "code is required and at most 512 characters"))
		return
	}

	result, err := h.svc.Authenticate(r.Context(), provider, req.Code)
	if err != nil {
		if apperror.Kind(err) == "internal_error" {
			h.logger.Error("create session failed",
				slog.String("provider", provider.Slug()),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, SessionResponse{Token: result.Token})
}

// HandleAuthorize redirects to the provider's consent page.
//
// HTTP: GET /sessions/{provider}/authorize
//
// The state is an unguessable xid, also set in a short-lived HttpOnly cookie
// so the client's callback page can be checked against it.
func (h *AuthHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	provider, err := providerParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	state := xid.New().String()
	target, err := h.svc.AuthorizeURL(provider, state)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// HandleProfile returns the user behind the session token.
//
// HTTP: GET /profile
// Auth: Required (auth.RequireAuth puts the user ID in the context)
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid session token required"))
		return
	}

	user, err := h.svc.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Warn("profile lookup failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func providerParam(r *http.Request) (model.Provider, error) {
	slug := chi.URLParam(r, "provider")
	provider, err := model.ParseProvider(slug)
	if err != nil {
		return "", apperror.NotFound("provider", slug)
	}
	return provider, nil
}
