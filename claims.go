package identity

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload minted for a Principal.
type Claims struct {
	jwt.RegisteredClaims
	Login string   `json:"login"`
	Roles []string `json:"roles"`
}

// Subject returns the subject claim
func (c *Claims) Subject() string {
	return c.RegisteredClaims.Subject
}

// Authorities returns the ROLE_ prefixed authorities carried by the token.
func (c *Claims) Authorities() []string {
	return slices.Clone(c.Roles)
}

func (c *Claims) HasAuthority(authority string) bool {
	return slices.Contains(c.Roles, authority)
}

// Principal rebuilds the caller from the token payload.
func (c *Claims) Principal() Principal {
	login := c.Login
	if login == "" {
		login = c.Subject()
	}
	return Principal{Login: login, Authorities: c.Authorities()}
}

func (c *Claims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

func (c *Claims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}
