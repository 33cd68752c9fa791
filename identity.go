package zerofriction

import (
	"crypto/sha256"
	"encoding/hex"
	"net/mail"
	"strings"
)

// normalizeIdentity lowercases and trims an email address. Every store key
// and hash derives from the normalized form, so "Alice@X.com " and
// "alice@x.com" are the same identity.
func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// validIdentity reports whether the normalized identity is a syntactically
// plausible bare email address.
func validIdentity(identity string) bool {
	if identity == "" || len(identity) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(identity)
	if err != nil {
		return false
	}
	// Reject display-name forms like "Alice <a@x.com>"; the identity must
	// be the bare address.
	return addr.Address == identity
}

// hashIdentity is the deterministic one-way hash binding credentials and
// counters to an identity without storing the address itself.
func hashIdentity(identity string) string {
	sum := sha256.Sum256([]byte(normalizeIdentity(identity)))
	return hex.EncodeToString(sum[:])
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
