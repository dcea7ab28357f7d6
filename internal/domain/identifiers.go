package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const orderIDPrefix = "ord_"

// OrderIDForSession derives the order identifier from a payment session reference.
// Identical references always produce the same id, which storage treats as the uniqueness key.
func OrderIDForSession(sessionRef string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sessionRef)))
	return orderIDPrefix + strings.ToUpper(hex.EncodeToString(sum[:])[:26])
}
