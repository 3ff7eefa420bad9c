// Package token issues and checks single-use invitation tokens. Only the
// sha256 hash of a token is ever stored.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"
)

// TTL is how long an invitation token stays valid after issue.
const TTL = 7 * 24 * time.Hour

const tokenBytes = 32

var (
	ErrInvalidToken     = errors.New("invalid_token")
	ErrExpiredToken     = errors.New("expired_token")
	ErrTokenMismatch    = errors.New("token_mismatch")
	ErrAlreadyActivated = errors.New("already_activated")
)

// Generate returns a fresh 64-character hex token.
func Generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Hash returns the hex sha256 of token.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func ExpiresAt(now time.Time) time.Time {
	return now.Add(TTL)
}

// Validate checks a presented token against the stored hash and expiry.
// A token is still valid at exactly expiresAt.
func Validate(presented, storedHash string, expiresAt, now time.Time) error {
	if presented == "" || storedHash == "" || expiresAt.IsZero() {
		return ErrInvalidToken
	}
	if now.After(expiresAt) {
		return ErrExpiredToken
	}
	if subtle.ConstantTimeCompare([]byte(Hash(presented)), []byte(storedHash)) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

// Reason maps a token error to the short code returned by validation.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	case errors.Is(err, ErrTokenMismatch):
		return "mismatch"
	case errors.Is(err, ErrAlreadyActivated):
		return "already_activated"
	default:
		return "invalid"
	}
}
