package catalog

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 10000
	pbkdf2KeyLen     = sha256.Size
	saltBytes        = 16
)

// HashPassword derives a "salt$hex" PBKDF2-HMAC-SHA256 record for
// storage.
func HashPassword(password string) string {
	salt := make([]byte, saltBytes)
	rand.Read(salt)
	return hashWithSalt(password, hex.EncodeToString(salt))
}

func hashWithSalt(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return salt + "$" + hex.EncodeToString(key)
}

// VerifyPassword checks provided against a stored record. A stored
// value without the salt separator is a legacy plaintext row and is
// accepted on direct equality; callers upgrade such rows after a
// successful match (see NeedsUpgrade).
func VerifyPassword(stored, provided string) bool {
	salt, _, found := strings.Cut(stored, "$")
	if !found {
		return subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) == 1
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(hashWithSalt(provided, salt))) == 1
}

// NeedsUpgrade reports whether a stored credential is still plaintext.
func NeedsUpgrade(stored string) bool {
	return !strings.Contains(stored, "$")
}
