package auth

import (
	"strings"

	"github.com/alexedwards/argon2id"
)

// AdminKeyVerifier checks presented API keys against a set of argon2id
// hashes loaded from configuration. Plaintext keys are never stored.
type AdminKeyVerifier struct {
	hashes []string
}

// NewAdminKeyVerifier keeps only well-formed argon2id hashes.
func NewAdminKeyVerifier(hashes []string) *AdminKeyVerifier {
	kept := make([]string, 0, len(hashes))
	for _, h := range hashes {
		h = strings.TrimSpace(h)
		if strings.HasPrefix(h, "$argon2id$") {
			kept = append(kept, h)
		}
	}
	return &AdminKeyVerifier{hashes: kept}
}

// Verify reports whether the presented key matches any configured hash.
func (v *AdminKeyVerifier) Verify(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" || len(v.hashes) == 0 {
		return false
	}
	for _, h := range v.hashes {
		ok, err := argon2id.ComparePasswordAndHash(key, h)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// HashKey produces an argon2id hash suitable for ADMIN_API_KEY_HASHES.
func HashKey(key string) (string, error) {
	return argon2id.CreateHash(key, argon2id.DefaultParams)
}
