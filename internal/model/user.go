// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a local account.
//
// Email is the natural key and is unique across all users. It is compared
// exactly as stored (case-sensitive). PasswordHash is nil for users that only
// ever signed in through an identity provider.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Name         *string   `json:"name"      db:"name"`
	Email        string    `json:"email"     db:"email"`
	AvatarURL    *string   `json:"avatarUrl" db:"avatar_url"`
	PasswordHash *string   `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
