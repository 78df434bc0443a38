package terminal

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// GenerateAPIKey mints a new per-terminal secret. The
// plaintext is returned to the caller exactly once, at terminal creation;
// only its digest is ever stored.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("terminal: generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashAPIKey derives the stored digest for an API key. A keyed-hash is not
// needed here — the digest only has to be non-reversible and stable enough
// to look terminals up by, so a plain SHA3-256 suffices.
func HashAPIKey(key string) string {
	sum := sha3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// VerifyAPIKey compares a presented plaintext key against a stored digest
// in constant time.
func VerifyAPIKey(storedHash, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(HashAPIKey(presented))) == 1
}
