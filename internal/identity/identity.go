// Package identity generates session-scoped socket identifiers and hashes
// raw client identifiers before they ever leave the broker.
package identity

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewSocketID returns a fresh random identifier for a transport connection.
func NewSocketID() string {
	return uuid.New().String()
}

// IsValidClientID reports whether raw is a well-formed UUID. Clients
// generate their own clientId locally; the broker only checks shape.
func IsValidClientID(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}

// HashClientID returns the hex-encoded SHA-256 digest of a raw clientId.
// Only this digest is ever attached to outbound messages or logs; the raw
// value never leaves the process it was received in.
func HashClientID(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// FormatClientID returns raw unchanged when it is a well-formed UUID, else
// mints a fresh one. A client that shows up with a malformed identifier is
// treated as new rather than rejected.
func FormatClientID(raw string) string {
	if IsValidClientID(raw) {
		return raw
	}
	return uuid.New().String()
}
