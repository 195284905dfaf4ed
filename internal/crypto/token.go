package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// APIKeyPrefix marks every plaintext API key issued by the service.
const APIKeyPrefix = "dd_key_"

// apiKeyEntropy is the number of random bytes behind each API key.
const apiKeyEntropy = 32

var ErrMalformedToken = errors.New("malformed API key")

// HashToken returns the hex-encoded SHA-256 digest of a plaintext token.
// The digest is the only form of an API key the store ever sees.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey issues a new API key and its digest.
// Returns (plaintext, digest).
func GenerateAPIKey() (string, string, error) {
	buf := make([]byte, apiKeyEntropy)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token := APIKeyPrefix + hex.EncodeToString(buf)
	return token, HashToken(token), nil
}

// ValidateTokenFormat checks that a token carries the API key prefix.
func ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, APIKeyPrefix) || len(token) == len(APIKeyPrefix) {
		return ErrMalformedToken
	}
	return nil
}
