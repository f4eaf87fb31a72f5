package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-at-least-16-chars!!"

// newTestTokenService creates a TokenService with a fixed, known secret.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret, DefaultSessionTTL)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("short", time.Hour); err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts, err := NewTokenService("this-is-16-chars", 0)
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error: %v", err)
	}
	if ts.ttl != DefaultSessionTTL {
		t.Errorf("ttl = %v, want %v", ts.ttl, DefaultSessionTTL)
	}
}

// =========================================================================
// ISSUE TESTS
// =========================================================================

func TestIssue_ClaimsShape(t *testing.T) {
	ts := newTestTokenService(t)
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return fixed }

	token, err := ts.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("Issue() token doesn't look like a compact JWS: %q", token)
	}

	// Decode without verification to look at the payload.
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		t.Fatalf("ParseUnverified() error = %v", err)
	}
	if c.Subject != "user-123" {
		t.Errorf("sub = %q, want user-123", c.Subject)
	}
	if c.Issuer != Issuer {
		t.Errorf("iss = %q, want %q", c.Issuer, Issuer)
	}
	if !c.IssuedAt.Time.Equal(fixed) {
		t.Errorf("iat = %v, want %v", c.IssuedAt.Time, fixed)
	}
	if got := c.ExpiresAt.Time.Sub(c.IssuedAt.Time); got != 7*24*time.Hour {
		t.Errorf("exp - iat = %v, want 168h", got)
	}
}

func TestIssue_EmptyUserID(t *testing.T) {
	ts := newTestTokenService(t)
	if _, err := ts.Issue(""); err == nil {
		t.Fatal("Issue() should refuse an empty user ID")
	}
}

// =========================================================================
// VERIFY TESTS
// =========================================================================

func TestVerifySession_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Issue("user-abc-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	got, err := ts.VerifySession(token)
	if err != nil {
		t.Fatalf("VerifySession() error = %v", err)
	}
	if got != "user-abc-123" {
		t.Errorf("VerifySession() = %q, want %q", got, "user-abc-123")
	}
}

func TestVerifySession_Expired(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.IssueWithTTL("user-123", -time.Second)
	if err != nil {
		t.Fatalf("IssueWithTTL() error = %v", err)
	}

	_, err = ts.VerifySession(token)
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("VerifySession() error = %v, want expiry error", err)
	}
}

func TestVerifySession_ExpiresAfterSevenDays(t *testing.T) {
	ts := newTestTokenService(t)
	start := time.Now()
	ts.now = func() time.Time { return start }

	token, _ := ts.Issue("user-123")

	ts.now = func() time.Time { return start.Add(DefaultSessionTTL - time.Minute) }
	if _, err := ts.VerifySession(token); err != nil {
		t.Fatalf("token should still be valid just before 7 days: %v", err)
	}

	ts.now = func() time.Time { return start.Add(DefaultSessionTTL + time.Minute) }
	if _, err := ts.VerifySession(token); err == nil {
		t.Fatal("token should be expired after 7 days")
	}
}

func TestVerifySession_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	good, _ := ts.Issue("user-123")

	other, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour)
	wrongSecret, _ := other.Issue("user-123")

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-123",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	wrongIssuer, _ := foreign.SignedString([]byte(testSecret))

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-123",
		Issuer:    Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	noneAlg, _ := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "user-123",
		Issuer:  Issuer,
	}})
	missingExp, _ := noExp.SignedString([]byte(testSecret))

	tests := []struct {
		name  string
		token string
	}{
		{"tampered signature", good[:len(good)-3] + "xxx"},
		{"wrong secret", wrongSecret},
		{"wrong issuer", wrongIssuer},
		{"alg none", noneAlg},
		{"no expiry", missingExp},
		{"empty", ""},
		{"garbage", "not.a.jwt.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ts.VerifySession(tt.token); err == nil {
				t.Fatalf("VerifySession(%s) should fail", tt.name)
			}
		})
	}
}
