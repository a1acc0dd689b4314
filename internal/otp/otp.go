// Package otp provides the code primitives for phone verification challenges:
// generation, salted hashing, and constant-time comparison. Codes are never
// stored or logged in plain form outside dev mode.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const saltBytes = 16

// GenerateCode returns a numeric code of the given length (e.g. "482913").
// Uses crypto/rand for randomness.
func GenerateCode(digits int) (string, error) {
	b := make([]byte, digits)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := make([]byte, digits)
	for i := 0; i < digits; i++ {
		s[i] = '0' + (b[i] % 10)
	}
	return string(s), nil
}

// NewSalt returns a fresh per-challenge salt, hex-encoded.
func NewSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashCode returns a SHA-256 hash of salt||code, hex-encoded.
func HashCode(code, salt string) string {
	h := sha256.Sum256([]byte(salt + code))
	return hex.EncodeToString(h[:])
}

// CodeEqual performs constant-time comparison of the provided code's salted
// hash with the stored hash.
func CodeEqual(providedCode, salt, storedHash string) bool {
	providedHash := HashCode(providedCode, salt)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
