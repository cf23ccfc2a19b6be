package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// KeyGenerator mints the secret part of a token.
type KeyGenerator interface {
	NewKey(accountID string, expiresAt *time.Time) (string, error)
}

// OpaqueKeyBytes is the amount of randomness in an opaque key. Hex encoding
// doubles it, giving 40-character keys.
const OpaqueKeyBytes = 20

// OpaqueKeys mints random keys that carry no information about the account.
type OpaqueKeys struct{}

var _ KeyGenerator = OpaqueKeys{}

func (OpaqueKeys) NewKey(string, *time.Time) (string, error) {
	b := make([]byte, OpaqueKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating token key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
