package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewStateToken returns the CSRF state nonce round-tripped through the
// provider redirect.
func NewStateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
