package identity_test

import (
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	assert.Equal(t, []identity.RoleType{
		"USER", "CREDIT_USER", "OVERDRAFT_USER", "DEAL_SUPERUSER",
		"CONTRACTOR_RUS", "CONTRACTOR_SUPERUSER", "SUPERUSER", "ADMIN",
	}, identity.Catalog())

	catalog := identity.Catalog()
	catalog[0] = "MUTATED"
	assert.Equal(t, identity.RoleUser, identity.Catalog()[0])

	records := identity.CatalogRecords()
	require.Len(t, records, 8)
	assert.Equal(t, identity.RoleAdmin, records[7].ID)
	assert.Equal(t, "Administrator", records[7].Name)
}

func TestParseRoleType(t *testing.T) {
	tests := []struct {
		input    string
		expected identity.RoleType
		wantErr  bool
	}{
		{input: "ADMIN", expected: identity.RoleAdmin},
		{input: "ROLE_ADMIN", expected: identity.RoleAdmin},
		{input: " credit_user ", expected: identity.RoleCreditUser},
		{input: "WIZARD", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := identity.ParseRoleType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, identity.IsNotFound(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseRoleTypesDedupes(t *testing.T) {
	got, err := identity.ParseRoleTypes([]string{"ADMIN", "USER", "ROLE_ADMIN"})
	require.NoError(t, err)
	assert.Equal(t, []identity.RoleType{identity.RoleAdmin, identity.RoleUser}, got)

	_, err = identity.ParseRoleTypes([]string{"USER", "WIZARD"})
	assert.True(t, identity.IsNotFound(err))
}

func TestAuthoritiesRoundTrip(t *testing.T) {
	roles := []identity.RoleType{identity.RoleUser, identity.RoleSuperuser}
	authorities := identity.Authorities(roles)
	assert.Equal(t, []string{"ROLE_USER", "ROLE_SUPERUSER"}, authorities)
	assert.Equal(t, roles, identity.RolesFromAuthorities(append(authorities, "ROLE_WIZARD", "SCOPE_read")))
}

func TestPrincipal(t *testing.T) {
	p := identity.NewPrincipal(&identity.Identity{Login: "root"}, []identity.RoleType{identity.RoleUser, identity.RoleAdmin})
	assert.Equal(t, "root", p.Login)
	assert.True(t, p.IsAdmin())
	assert.True(t, p.HasRole(identity.RoleUser))
	assert.False(t, p.HasRole(identity.RoleSuperuser))
	assert.Equal(t, []identity.RoleType{identity.RoleUser, identity.RoleAdmin}, p.Roles())

	assert.True(t, identity.NewPrincipal(nil, nil).IsZero())
}
