package identity

import (
	"crypto/sha256"
	"encoding/base64"
)

// SaltLength is the fixed width of a derived salt.
const SaltLength = 32

const saltSeparator = ":"

// DeriveSalt computes the per-identity salt from the process secret, login
// and email. The same triple always yields the same salt.
func DeriveSalt(secret, login, email string) string {
	sum := sha256.Sum256([]byte(secret + saltSeparator + login + saltSeparator + email))
	encoded := base64.StdEncoding.EncodeToString(sum[:])
	return encoded[:SaltLength]
}
