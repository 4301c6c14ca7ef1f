package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// MinTokenLength is the smallest number of random bytes accepted for session tokens.
const MinTokenLength = 16

// MaxTokenLength keeps encoded tokens within 128 characters.
const MaxTokenLength = 96

// ErrTokenTooShort is returned when a caller asks for fewer than MinTokenLength bytes.
var ErrTokenTooShort = errors.New("crypto: token length below minimum")

// GenerateToken returns a random URL-safe token built from length bytes of crypto/rand.
func GenerateToken(length int) (string, error) {
	if length < MinTokenLength {
		return "", ErrTokenTooShort
	}
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
