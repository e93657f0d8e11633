package identity_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationFields(t *testing.T, err error) []string {
	t.Helper()
	var rich *errors.Error
	require.True(t, errors.As(err, &rich), "expected a rich error, got %v", err)
	assert.Equal(t, errors.CategoryValidation, rich.Category)

	fields := make([]string, 0, len(rich.ValidationErrors))
	for _, fe := range rich.ValidationErrors {
		fields = append(fields, fe.Field)
	}
	return fields
}

func TestSignupMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     identity.SignupMessage
		invalid []string
	}{
		{name: "valid", msg: identity.SignupMessage{Login: "alice", Email: "alice@example.com", Password: "secret-pass"}},
		{name: "empty", msg: identity.SignupMessage{}, invalid: []string{"login", "email", "password"}},
		{name: "short login", msg: identity.SignupMessage{Login: " al ", Email: "alice@example.com", Password: "secret-pass"}, invalid: []string{"login"}},
		{name: "bad email", msg: identity.SignupMessage{Login: "alice", Email: "alice", Password: "secret-pass"}, invalid: []string{"email"}},
		{name: "short password", msg: identity.SignupMessage{Login: "alice", Email: "alice@example.com", Password: "12345"}, invalid: []string{"password"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if len(tt.invalid) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ElementsMatch(t, tt.invalid, validationFields(t, err))
		})
	}
}

func TestMessageTypes(t *testing.T) {
	assert.Equal(t, identity.MessageTypeSignup, identity.SignupMessage{}.Type())
	assert.Equal(t, identity.MessageTypeSignin, identity.SigninMessage{}.Type())
	assert.Equal(t, identity.MessageTypeAssignRoles, identity.AssignRolesMessage{}.Type())
	assert.Equal(t, identity.MessageTypeViewRoles, identity.ViewRolesQuery{}.Type())
}

func TestAssignRolesMessage_Validate(t *testing.T) {
	assert.NoError(t, identity.AssignRolesMessage{Login: "alice", Roles: []string{"USER"}}.Validate())

	err := identity.AssignRolesMessage{Login: " ", Roles: nil}.Validate()
	require.Error(t, err)
	assert.ElementsMatch(t, []string{"login", "roles"}, validationFields(t, err))
}

func TestSignupAndSigninHandlers(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	auth := identity.NewAuthenticator(store, newHasher(t), newTokens(t))

	signup := identity.NewSignupHandler(auth)
	signin := identity.NewSigninHandler(auth)

	require.NoError(t, signup.Execute(ctx, identity.SignupMessage{
		Login: "alice", Email: "alice@example.com", Password: "secret-pass",
	}))

	err := signup.Execute(ctx, identity.SignupMessage{Login: "bob"})
	require.Error(t, err)
	assert.Equal(t, 1, store.count())

	result, err := signin.Query(ctx, identity.SigninMessage{Login: "alice", Password: "secret-pass"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_USER"}, result.Roles)

	_, err = signin.Query(ctx, identity.SigninMessage{Login: "alice"})
	require.Error(t, err)
	assert.False(t, identity.IsInvalidCredentials(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = signin.Query(cancelled, identity.SigninMessage{Login: "alice", Password: "secret-pass"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRoleHandlers(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seed(localIdentity(newHasher(t), "alice", "alice@example.com", "secret-pass"))

	roles := identity.NewRoleService(store)
	assign := identity.NewAssignRolesHandler(roles)
	view := identity.NewViewRolesHandler(roles)

	require.NoError(t, assign.Execute(ctx, identity.AssignRolesMessage{
		Login: " alice ",
		Roles: []string{"role_admin", "USER", "ADMIN"},
	}))

	got, err := view.Query(ctx, identity.ViewRolesQuery{
		Requester: identity.Principal{Login: "alice", Authorities: []string{"ROLE_USER"}},
		Login:     "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, []identity.RoleType{identity.RoleUser, identity.RoleAdmin}, got)

	err = assign.Execute(ctx, identity.AssignRolesMessage{Login: "alice", Roles: []string{"OWNER"}})
	assert.True(t, identity.IsNotFound(err))

	_, err = view.Query(ctx, identity.ViewRolesQuery{
		Requester: identity.Principal{Login: "mallory", Authorities: []string{"ROLE_USER"}},
		Login:     "alice",
	})
	assert.True(t, identity.IsAccessDenied(err))
}
