package database

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hash creates a bcrypt hash of value. A cost outside bcrypt's range uses bcrypt.DefaultCost.
func Hash(value string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(value), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash value: %w", err)
	}
	return string(bytes), nil
}

// VerifyHash checks if plain matches hashed. A mismatch is not an error.
func VerifyHash(plain, hashed string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("failed to verify hash: %w", err)
	}
}

// ValidatePassword validates password requirements
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters long")
	}
	if len(password) > 72 {
		// bcrypt only looks at the first 72 bytes
		return fmt.Errorf("password must be at most 72 bytes")
	}
	return nil
}
