package identity

import "slices"

// Principal is the authenticated caller: a login plus resolved authorities.
// It is derived from an Identity and never persisted.
type Principal struct {
	Login       string   `json:"login"`
	Authorities []string `json:"roles"`
}

// NewPrincipal maps an identity and its current role set to a Principal.
func NewPrincipal(identity *Identity, roles []RoleType) Principal {
	p := Principal{Authorities: Authorities(roles)}
	if identity != nil {
		p.Login = identity.Login
	}
	return p
}

// HasAuthority reports whether p holds authority, e.g. ROLE_ADMIN.
func (p Principal) HasAuthority(authority string) bool {
	return slices.Contains(p.Authorities, authority)
}

func (p Principal) HasRole(role RoleType) bool {
	return p.HasAuthority(role.Authority())
}

func (p Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

// Roles returns the catalog roles behind p's authorities.
func (p Principal) Roles() []RoleType {
	return RolesFromAuthorities(p.Authorities)
}

// IsZero reports whether p is the anonymous principal.
func (p Principal) IsZero() bool {
	return p.Login == ""
}
