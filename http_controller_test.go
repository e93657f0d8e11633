package identity_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Error struct {
		Code             int    `json:"code"`
		TextCode         string `json:"text_code"`
		Message          string `json:"message"`
		ValidationErrors []struct {
			Field string `json:"field"`
		} `json:"validation_errors"`
	} `json:"error"`
}

// asPrincipal stands in for the bearer middleware, reading the caller
// login from a header and resolving roles from the store.
func asPrincipal(store *memStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		login := c.Get("X-Test-Login")
		if login == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		roles, err := store.AssignmentsOf(context.Background(), login)
		if err != nil {
			return err
		}
		c.Locals(identity.PrincipalLocalsKey, identity.Principal{
			Login:       login,
			Authorities: identity.Authorities(roles),
		})
		return c.Next()
	}
}

func newControllerApp(t *testing.T) (*fiber.App, *memStore) {
	t.Helper()
	store := newMemStore()
	hasher := newHasher(t)
	store.seed(
		localIdentity(hasher, "alice", "alice@example.com", "secret-pass"),
		localIdentity(hasher, "root", "root@example.com", "secret-pass"),
	)
	require.NoError(t, store.ReplaceAssignments(context.Background(), "root", []identity.RoleType{identity.RoleUser, identity.RoleAdmin}))

	auth := identity.NewAuthenticator(store, hasher, newTokens(t))
	roles := identity.NewRoleService(store)

	app := fiber.New(fiber.Config{ErrorHandler: identity.NewErrorHandler(nil, false)})
	identity.NewHTTPController(auth, roles).RegisterRoutes(app, asPrincipal(store))
	return app, store
}

func doRequest(t *testing.T, app *fiber.App, method, path, login string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if login != "" {
		req.Header.Set("X-Test-Login", login)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHTTPController_Signup(t *testing.T) {
	app, store := newControllerApp(t)

	resp := doRequest(t, app, http.MethodPut, "/api/v1/auth/signup", "", map[string]string{
		"login": "bob", "email": "bob@example.com", "password": "secret-pass",
	})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, 3, store.count())

	resp = doRequest(t, app, http.MethodPut, "/api/v1/auth/signup", "", map[string]string{
		"login": "bob", "email": "bob2@example.com", "password": "secret-pass",
	})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, identity.TextCodeIdentityExists, decodeError(t, resp).Error.TextCode)

	resp = doRequest(t, app, http.MethodPut, "/api/v1/auth/signup", "", map[string]string{
		"login": "b", "email": "not-an-email", "password": "123",
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	body := decodeError(t, resp)
	fields := []string{}
	for _, v := range body.Error.ValidationErrors {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{"login", "email", "password"}, fields)
}

func TestHTTPController_Signin(t *testing.T) {
	app, _ := newControllerApp(t)

	resp := doRequest(t, app, http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"login": "root", "password": "secret-pass",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "root", result["login"])
	assert.Equal(t, []any{"ROLE_USER", "ROLE_ADMIN"}, result["roles"])
	assert.NotEmpty(t, result["token"])
	assert.NotContains(t, result, "Principal")

	resp = doRequest(t, app, http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"login": "root", "password": "wrong-pass",
	})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, identity.TextCodeInvalidCredentials, decodeError(t, resp).Error.TextCode)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", bytes.NewReader([]byte("{")))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHTTPController_Roles(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		login  string
		body   any
		status int
	}{
		{name: "owner views own roles", method: http.MethodGet, path: "/api/v1/user-roles/alice", login: "alice", status: fiber.StatusOK},
		{name: "admin views any roles", method: http.MethodGet, path: "/api/v1/user-roles/alice", login: "root", status: fiber.StatusOK},
		{name: "user cannot view others", method: http.MethodGet, path: "/api/v1/user-roles/root", login: "alice", status: fiber.StatusForbidden},
		{name: "non admin probing unknown login is denied", method: http.MethodGet, path: "/api/v1/user-roles/ghost", login: "alice", status: fiber.StatusForbidden},
		{name: "admin viewing unknown login", method: http.MethodGet, path: "/api/v1/user-roles/ghost", login: "root", status: fiber.StatusNotFound},
		{name: "anonymous", method: http.MethodGet, path: "/api/v1/user-roles/alice", status: fiber.StatusUnauthorized},
		{name: "user cannot save roles", method: http.MethodPut, path: "/api/v1/user-roles/save", login: "alice", body: map[string]any{"login": "alice", "roles": []string{"ADMIN"}}, status: fiber.StatusForbidden},
		{name: "admin saves roles", method: http.MethodPut, path: "/api/v1/user-roles/save", login: "root", body: map[string]any{"login": "alice", "roles": []string{"ADMIN", "USER"}}, status: fiber.StatusOK},
		{name: "admin saves unknown role", method: http.MethodPut, path: "/api/v1/user-roles/save", login: "root", body: map[string]any{"login": "alice", "roles": []string{"WIZARD"}}, status: fiber.StatusNotFound},
		{name: "admin saves empty role list", method: http.MethodPut, path: "/api/v1/user-roles/save", login: "root", body: map[string]any{"login": "alice", "roles": []string{}}, status: fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newControllerApp(t)
			resp := doRequest(t, app, tt.method, tt.path, tt.login, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	t.Run("saved roles are visible", func(t *testing.T) {
		app, store := newControllerApp(t)
		resp := doRequest(t, app, http.MethodPut, "/api/v1/user-roles/save", "root", map[string]any{
			"login": "alice", "roles": []string{"ADMIN", "USER"},
		})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		roles, err := store.AssignmentsOf(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, []identity.RoleType{identity.RoleUser, identity.RoleAdmin}, roles)

		resp = doRequest(t, app, http.MethodGet, "/api/v1/user-roles/alice", "alice", nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var got []string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, []string{"USER", "ADMIN"}, got)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not found", err: identity.NewIdentityNotFound("alice"), status: fiber.StatusNotFound},
		{name: "conflict", err: identity.ErrProviderConflict, status: fiber.StatusConflict},
		{name: "auth", err: identity.ErrInvalidCredentials, status: fiber.StatusUnauthorized},
		{name: "authz", err: identity.ErrAccessDenied, status: fiber.StatusForbidden},
		{name: "validation", err: goerrors.NewValidation("bad"), status: fiber.StatusBadRequest},
		{name: "configuration", err: identity.ErrConfigurationFault, status: fiber.StatusInternalServerError},
		{name: "fiber error", err: fiber.NewError(fiber.StatusTeapot, "teapot"), status: fiber.StatusTeapot},
		{name: "plain", err: errors.New("boom"), status: fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, identity.StatusFor(tt.err))
		})
	}
}

func TestNewErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: identity.NewErrorHandler(nil, false)})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("database password is hunter2")
	})
	app.Get("/denied", func(c *fiber.Ctx) error {
		return identity.ErrAccessDenied
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/denied", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, identity.TextCodeAccessDenied, body.Error.TextCode)
	assert.Equal(t, fiber.StatusForbidden, body.Error.Code)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
