package identity_test

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
)

func TestDeriveSalt(t *testing.T) {
	sum := sha256.Sum256([]byte("pepper:alice:alice@example.com"))
	want := base64.StdEncoding.EncodeToString(sum[:])[:identity.SaltLength]

	got := identity.DeriveSalt("pepper", "alice", "alice@example.com")
	assert.Equal(t, want, got)
	assert.Len(t, got, identity.SaltLength)
	assert.Equal(t, got, identity.DeriveSalt("pepper", "alice", "alice@example.com"))
}

func TestDeriveSaltVariesWithEveryInput(t *testing.T) {
	base := identity.DeriveSalt("pepper", "alice", "alice@example.com")

	tests := []struct {
		name                 string
		secret, login, email string
	}{
		{name: "secret", secret: "salt", login: "alice", email: "alice@example.com"},
		{name: "login", secret: "pepper", login: "alicia", email: "alice@example.com"},
		{name: "email", secret: "pepper", login: "alice", email: "alice@example.org"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, identity.DeriveSalt(tt.secret, tt.login, tt.email))
		})
	}
}

func TestDeriveSaltEmptyInputs(t *testing.T) {
	assert.Len(t, identity.DeriveSalt("", "", ""), identity.SaltLength)
}
