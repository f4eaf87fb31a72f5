package model

import (
	"fmt"
	"strings"
	"time"
)

// Provider tags an external identity provider. The value is what gets stored.
type Provider string

const (
	ProviderGitHub Provider = "GITHUB"
)

// ParseProvider maps a URL slug like "github" to a Provider.
func ParseProvider(slug string) (Provider, error) {
	switch strings.ToLower(slug) {
	case "github":
		return ProviderGitHub, nil
	default:
		return "", fmt.Errorf("model: unsupported provider %q", slug)
	}
}

// Slug is the lower-case form used in URLs and metric labels.
func (p Provider) Slug() string {
	return strings.ToLower(string(p))
}

// Account links one external identity to a local User.
//
// (Provider, ProviderAccountID) is unique: one external identity maps to
// exactly one local user. (Provider, UserID) is unique too, so a user holds at
// most one identity per provider, but may hold identities on several providers.
type Account struct {
	ID                string    `json:"id"                db:"id"`
	Provider          Provider  `json:"provider"          db:"provider"`
	ProviderAccountID string    `json:"providerAccountId" db:"provider_account_id"`
	UserID            string    `json:"userId"            db:"user_id"`
	CreatedAt         time.Time `json:"createdAt"         db:"created_at"`
}

// Profile is the validated identity returned by a provider's profile endpoint.
type Profile struct {
	ExternalID string
	Name       *string
	Email      *string
	AvatarURL  string
}
