package identity

import (
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Provider is the origin of an identity's credentials.
type Provider string

const (
	ProviderLocal  Provider = "LOCAL"
	ProviderGoogle Provider = "GOOGLE"
	ProviderGitHub Provider = "GITHUB"
)

// IsFederated reports whether p is an OAuth provider.
func (p Provider) IsFederated() bool {
	return p == ProviderGoogle || p == ProviderGitHub
}

func (p Provider) IsValid() bool {
	return p == ProviderLocal || p.IsFederated()
}

// Identity is the persisted account record. It is keyed by login and never
// carries its role assignments; those are looked up by login.
type Identity struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	Login        string    `bun:"login,pk" json:"login"`
	PasswordHash *string   `bun:"password" json:"-"`
	Email        string    `bun:"email,notnull,unique:uq_users_email_provider" json:"email"`
	Provider     Provider  `bun:"provider_type,notnull,unique:uq_users_email_provider" json:"provider"`
	Active       bool      `bun:"active,notnull" json:"active"`
	GoogleID     *string   `bun:"google_id,unique" json:"google_id,omitempty"`
	GitHubID     *string   `bun:"github_id,unique" json:"github_id,omitempty"`
	FullName     string    `bun:"full_name" json:"full_name,omitempty"`
	AvatarURL    string    `bun:"profile_picture_url" json:"avatar_url,omitempty"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// HasPassword reports whether the identity can sign in with a local password.
func (i *Identity) HasPassword() bool {
	return i != nil && i.PasswordHash != nil && *i.PasswordHash != ""
}

// ExternalID returns the provider user id stored for p.
func (i *Identity) ExternalID(p Provider) string {
	var id *string
	switch p {
	case ProviderGoogle:
		id = i.GoogleID
	case ProviderGitHub:
		id = i.GitHubID
	}
	if id == nil {
		return ""
	}
	return *id
}

// SetExternalID stores the provider user id for p.
func (i *Identity) SetExternalID(p Provider, externalID string) {
	if externalID == "" {
		return
	}
	switch p {
	case ProviderGoogle:
		i.GoogleID = &externalID
	case ProviderGitHub:
		i.GitHubID = &externalID
	}
}

// Validate enforces the provider invariants: local identities carry a
// password and no provider ids, federated identities carry no password.
func (i *Identity) Validate() error {
	problems := map[string]string{}

	if strings.TrimSpace(i.Login) == "" {
		problems["login"] = "login is required"
	}
	if strings.TrimSpace(i.Email) == "" {
		problems["email"] = "email is required"
	}

	switch {
	case !i.Provider.IsValid():
		problems["provider"] = "unknown provider " + string(i.Provider)
	case i.Provider == ProviderLocal:
		if !i.HasPassword() {
			problems["password"] = "local identities require a password"
		}
		if i.GoogleID != nil || i.GitHubID != nil {
			problems["provider"] = "local identities cannot carry provider ids"
		}
	default:
		if i.PasswordHash != nil {
			problems["password"] = "federated identities cannot carry a password"
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.NewValidationFromMap("invalid identity", problems)
}

// RoleRecord is a row of the closed role catalog.
type RoleRecord struct {
	bun.BaseModel `bun:"table:roles,alias:rl"`

	ID   RoleType `bun:"id,pk" json:"id"`
	Name string   `bun:"name,notnull" json:"name"`
}

// RoleAssignment joins an identity, by login, to a catalog role.
type RoleAssignment struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`

	ID        int64    `bun:"id,pk,autoincrement" json:"id"`
	UserLogin string   `bun:"user_login,notnull,unique:uq_user_roles_login_role" json:"user_login"`
	RoleID    RoleType `bun:"role_id,notnull,unique:uq_user_roles_login_role" json:"role_id"`
}
