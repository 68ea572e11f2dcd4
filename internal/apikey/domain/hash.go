package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SecretPrefix marks ledger API keys so they are recognisable in logs and
// secret scanners.
const SecretPrefix = "fl_live_"

// HashAPIKey is the only form of a secret that is stored.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// FormatSecret renders fl_live_<key id without "key_">_<secret>.
func FormatSecret(keyID, secret string) string {
	return SecretPrefix + strings.TrimPrefix(keyID, "key_") + "_" + secret
}

// KeyIDFromSecret recovers the public key id embedded in a secret, so a
// failed login can be attributed without logging the secret.
func KeyIDFromSecret(raw string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), SecretPrefix)
	if !ok {
		return "", false
	}
	id, secret, ok := strings.Cut(rest, "_")
	if !ok || id == "" || secret == "" {
		return "", false
	}
	return "key_" + id, true
}
