package identity

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidPIN signals a PIN that is not exactly four digits.
var ErrInvalidPIN = errors.New("identity: pin must be exactly 4 digits")

// ValidatePIN checks the four-digit format shared by both identity kinds.
func ValidatePIN(pin string) error {
	if len(pin) != 4 {
		return ErrInvalidPIN
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}

// HashPIN validates and hashes a PIN for storage. A four-digit space is
// still brute-forceable, so the hash at rest limits exposure of reused PINs
// rather than making guessing infeasible.
func HashPIN(pin string) (string, error) {
	if err := ValidatePIN(pin); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("identity: hash pin: %w", err)
	}
	return string(hash), nil
}

// VerifyPIN reports whether pin matches the stored hash. Malformed input is
// simply a non-match; there is no lockout or attempt counter.
func VerifyPIN(pinHash, pin string) bool {
	if err := ValidatePIN(pin); err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(pinHash), []byte(pin)) == nil
}
