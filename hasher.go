package identity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// CredentialHasher hashes passwords with a salt derived from the identity's
// login and email. Changing either one invalidates the stored digest.
type CredentialHasher struct {
	secret string
}

// NewCredentialHasher returns a hasher bound to the process-wide secret.
func NewCredentialHasher(secret string) (*CredentialHasher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, raise(ErrConfigurationFault, nil, map[string]any{
			"reason": "global secret is empty",
		})
	}
	return &CredentialHasher{secret: secret}, nil
}

// Hash returns the url-safe base64 digest of password for login and email.
func (h *CredentialHasher) Hash(password, login, email string) string {
	salt := DeriveSalt(h.secret, login, email)
	sum := sha256.Sum256([]byte(password + salt))
	return base64.URLEncoding.EncodeToString(sum[:])
}

// Verify recomputes the digest for password and compares it with digest.
func (h *CredentialHasher) Verify(password, digest, login, email string) bool {
	if digest == "" {
		return false
	}
	candidate := h.Hash(password, login, email)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(digest)) == 1
}
