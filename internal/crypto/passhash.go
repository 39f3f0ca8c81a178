// Package crypto hashes and verifies account passwords.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// SaltSize is the length of a per-user password salt.
const SaltSize = 16

// Argon2id parameters.
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // KiB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword hashes password with a fresh random salt and returns both.
func HashPassword(password string) (hash, salt []byte, err error) {
	salt, err = RandBytes(SaltSize)
	if err != nil {
		return nil, nil, err
	}
	return derive(password, salt), salt, nil
}

// VerifyPassword reports whether password matches hash under salt.
func VerifyPassword(password string, salt, hash []byte) bool {
	if len(hash) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(derive(password, salt), hash) == 1
}

func derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
