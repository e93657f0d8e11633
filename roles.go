package identity

import (
	"slices"
	"strings"
)

// RoleType is a tag from the closed role catalog.
type RoleType string

const (
	RoleUser                RoleType = "USER"
	RoleCreditUser          RoleType = "CREDIT_USER"
	RoleOverdraftUser       RoleType = "OVERDRAFT_USER"
	RoleDealSuperuser       RoleType = "DEAL_SUPERUSER"
	RoleContractorRus       RoleType = "CONTRACTOR_RUS"
	RoleContractorSuperuser RoleType = "CONTRACTOR_SUPERUSER"
	RoleSuperuser           RoleType = "SUPERUSER"
	RoleAdmin               RoleType = "ADMIN"
)

// AuthorityPrefix is prepended to a role type to form an authority.
const AuthorityPrefix = "ROLE_"

// DefaultRole is assigned to every new identity.
const DefaultRole = RoleUser

var roleCatalog = []RoleType{
	RoleUser,
	RoleCreditUser,
	RoleOverdraftUser,
	RoleDealSuperuser,
	RoleContractorRus,
	RoleContractorSuperuser,
	RoleSuperuser,
	RoleAdmin,
}

var roleNames = map[RoleType]string{
	RoleUser:                "User",
	RoleCreditUser:          "Credit user",
	RoleOverdraftUser:       "Overdraft user",
	RoleDealSuperuser:       "Deal superuser",
	RoleContractorRus:       "Contractor RUS",
	RoleContractorSuperuser: "Contractor superuser",
	RoleSuperuser:           "Superuser",
	RoleAdmin:               "Administrator",
}

// Catalog returns the role catalog in declaration order.
func Catalog() []RoleType {
	return slices.Clone(roleCatalog)
}

// CatalogRecords returns the catalog as seedable rows.
func CatalogRecords() []RoleRecord {
	out := make([]RoleRecord, 0, len(roleCatalog))
	for _, r := range roleCatalog {
		out = append(out, RoleRecord{ID: r, Name: r.DisplayName()})
	}
	return out
}

// IsValid checks that r belongs to the catalog.
func (r RoleType) IsValid() bool {
	return slices.Contains(roleCatalog, r)
}

// Authority returns the authority string for r, e.g. ROLE_ADMIN.
func (r RoleType) Authority() string {
	return AuthorityPrefix + string(r)
}

func (r RoleType) DisplayName() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return string(r)
}

// ParseRoleType accepts either a bare role type or an authority.
func ParseRoleType(s string) (RoleType, error) {
	candidate := strings.ToUpper(strings.TrimSpace(s))
	candidate = strings.TrimPrefix(candidate, AuthorityPrefix)
	r := RoleType(candidate)
	if !r.IsValid() {
		return "", raise(ErrRoleNotFound, nil, map[string]any{"role": s})
	}
	return r, nil
}

// ParseRoleTypes parses every entry and drops duplicates, keeping first-seen order.
func ParseRoleTypes(values []string) ([]RoleType, error) {
	out := make([]RoleType, 0, len(values))
	for _, v := range values {
		r, err := ParseRoleType(v)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Authorities maps role types to their authority strings.
func Authorities(roles []RoleType) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.Authority())
	}
	return out
}

// RolesFromAuthorities is the inverse of Authorities; unknown entries are skipped.
func RolesFromAuthorities(authorities []string) []RoleType {
	out := make([]RoleType, 0, len(authorities))
	for _, a := range authorities {
		if !strings.HasPrefix(a, AuthorityPrefix) {
			continue
		}
		r := RoleType(strings.TrimPrefix(a, AuthorityPrefix))
		if r.IsValid() {
			out = append(out, r)
		}
	}
	return out
}
