package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost is the bcrypt work factor for stored hashes
// (2^12 rounds, roughly 250ms on a server core).
const DefaultPasswordCost = 12

// PasswordService hashes and checks passwords with bcrypt.
//
// This flow never logs anyone in with a password. Hashes exist because users
// created outside third-party sign-in (the seed command, password signup)
// carry one, and a linked user keeps it.
//
// Hash format:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost
//	 version
type PasswordService struct {
	cost int
}

// NewPasswordService uses DefaultPasswordCost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: DefaultPasswordCost}
}

// NewPasswordServiceWithCost is for tests and bulk seeding. Cost is clamped
// to bcrypt's allowed range.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	switch {
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &PasswordService{cost: cost}
}

// Hash returns a self-contained bcrypt hash of plaintext (salt and cost
// included). Inputs over 72 bytes are rejected rather than silently
// truncated by bcrypt.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("auth: password must not be empty")
	}
	if len(plaintext) > 72 {
		return "", errors.New("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash. The comparison is
// constant-time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return errors.New("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
