package orders

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// orderIDBytes sizes the random order identifier. 45 bytes of entropy keep
// identifiers unguessable, which is what gates result access.
const orderIDBytes = 45

// NewOrderID returns a fresh URL-safe random order identifier.
func NewOrderID() (string, error) {
	buf := make([]byte, orderIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("orders: generate id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
