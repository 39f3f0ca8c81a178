// Package token issues opaque session tokens and computes content digests of session projections.
//
// A session token identifies a login session and never changes while the session lives.
// The digest identifies the content of a projection and changes with every profile edit.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/and161185/ecoreport/internal/model"
)

// Size is the number of random bytes in a session token. Tokens are hex encoded.
const Size = 32

// New returns a fresh opaque session token (2*Size hex chars).
func New() (string, error) {
	b := make([]byte, Size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Digest returns the hex SHA-256 of the canonical JSON encoding of p.
// Identical projections always produce identical digests.
func Digest(p *model.Projection) string {
	// Marshal cannot fail: every Projection field has a total JSON encoding.
	raw, _ := json.Marshal(p)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Short returns a log-safe prefix of a token.
func Short(tok string) string {
	if len(tok) <= 8 {
		return tok
	}
	return tok[:8]
}
