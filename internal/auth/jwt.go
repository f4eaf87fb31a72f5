// Package auth holds the provider-facing and session-facing pieces of
// third-party sign-in.
//
// SIGN-IN FLOW OVERVIEW:
//  1. The web client sends the browser to GET /sessions/github/authorize,
//     which redirects to GitHub's consent page.
//  2. GitHub redirects back to the client with a one-time code.
//  3. The client posts {code} to POST /sessions/github.
//  4. GitHubProvider exchanges the code and fetches the profile; the service
//     layer links the identity to a local user.
//  5. TokenService issues a signed session token for that user.
//  6. Later calls send "Authorization: Bearer <token>"; RequireAuth verifies
//     it and puts the user ID in the request context.
//
// SESSION TOKENS:
// A session is a stateless HS256 JWT:
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<userID>","iat":...,"exp":...,"iss":"saas-rbac"}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
//
// Nothing is stored server-side, so sessions cannot be revoked before exp.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the "iss" claim on every session token.
const Issuer = "saas-rbac"

// DefaultSessionTTL is how long a session token stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

// TokenService issues and verifies session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. A non-positive ttl falls back to
// DefaultSessionTTL.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// claims embeds the registered claims; "sub" holds the internal user ID.
type claims struct {
	jwt.RegisteredClaims
}

// Issue signs a session token for userID, valid for the configured TTL.
func (s *TokenService) Issue(userID string) (string, error) {
	return s.IssueWithTTL(userID, s.ttl)
}

// IssueWithTTL signs a token with a custom lifetime. Tests use a negative
// ttl to get an already-expired token.
func (s *TokenService) IssueWithTTL(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue a session without a user ID")
	}
	now := s.now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// VerifySession parses tokenStr and returns the user ID in its "sub" claim.
//
// The jwt library checks the signature, expiry, and issuer. WithValidMethods
// pins HS256, which rejects "alg":"none" and RS/HS confusion tokens.
func (s *TokenService) VerifySession(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}
