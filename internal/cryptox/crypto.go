// Package cryptox holds the password and token hashing primitives used by
// the authentication service.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/dmitrijs2005/studynote/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	saltSize = 16
	keySize  = 32
)

// DeriveKey stretches password with argon2id.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, keySize)
}

// HashPassword derives a key from password with a fresh random salt and
// returns both hex-encoded.
func HashPassword(password []byte) (hash, salt string) {
	s := common.GenerateRandByteArray(saltSize)
	return hex.EncodeToString(DeriveKey(password, s)), hex.EncodeToString(s)
}

// VerifyPassword reports whether password matches the stored hash and salt.
// Malformed stored values never match.
func VerifyPassword(password []byte, hash, salt string) bool {
	s, err := hex.DecodeString(salt)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(hash)
	if err != nil || len(want) != keySize {
		return false
	}
	got := DeriveKey(password, s)
	defer common.WipeByteArray(got)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// TokenDigest returns the hex SHA-256 of an opaque token. Refresh tokens are
// stored by digest so a database dump does not leak live sessions.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
