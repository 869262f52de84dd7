// Package identity handles accounts, password hashing and access tokens.
package identity

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/sharemeal/sharemeal-go/internal/errs"
)

// UserAuth handles password hashing and verification.
type UserAuth struct {
	cost int // bcrypt cost factor
}

// NewUserAuth creates a new UserAuth with the given bcrypt cost.
// Cost should be at least 10 for production.
func NewUserAuth(cost int) *UserAuth {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &UserAuth{cost: cost}
}

// HashPassword creates a bcrypt hash of the password.
func (a *UserAuth) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks if the password matches the hash.
func (a *UserAuth) VerifyPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return errs.Authentication(errs.ReasonInvalidCredentials, "invalid email or password")
	}
	return nil
}

// ValidatePassword enforces the account password policy:
// 8..128 characters, at least one letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errs.Validation(errs.ReasonInvalidInput, "password must be at least 8 characters long")
	}
	if len(password) > 128 {
		return errs.Validation(errs.ReasonInvalidInput, "password cannot be longer than 128 characters")
	}
	var hasLetter, hasDigit bool
	for _, c := range password {
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			hasLetter = true
		}
	}
	if !hasLetter {
		return errs.Validation(errs.ReasonInvalidInput, "password must contain at least one letter")
	}
	if !hasDigit {
		return errs.Validation(errs.ReasonInvalidInput, "password must contain at least one number")
	}
	return nil
}
