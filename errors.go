package identity

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeIdentityExists     = "IDENTITY_EXISTS"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	TextCodeRoleNotFound       = "ROLE_NOT_FOUND"
	TextCodeProviderConflict   = "PROVIDER_CONFLICT"
	TextCodeAccessDenied       = "ACCESS_DENIED"
	TextCodeConfiguration      = "CONFIGURATION_FAULT"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
)

var (
	// ErrAlreadyExists is returned when a login or email is already taken.
	ErrAlreadyExists = errors.New("identity already exists", errors.CategoryConflict).
				WithTextCode(TextCodeIdentityExists).
				WithCode(errors.CodeConflict)

	// ErrInvalidCredentials covers unknown logins, inactive accounts and bad passwords alike.
	ErrInvalidCredentials = errors.New("invalid login or password", errors.CategoryAuth).
				WithTextCode(TextCodeInvalidCredentials).
				WithCode(errors.CodeUnauthorized)

	ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
				WithTextCode(TextCodeIdentityNotFound).
				WithCode(errors.CodeNotFound)

	ErrRoleNotFound = errors.New("role not found", errors.CategoryNotFound).
			WithTextCode(TextCodeRoleNotFound).
			WithCode(errors.CodeNotFound)

	// ErrProviderConflict is returned when a federated login resolves to a local account.
	ErrProviderConflict = errors.New("identity is registered with a different provider", errors.CategoryConflict).
				WithTextCode(TextCodeProviderConflict).
				WithCode(errors.CodeConflict)

	ErrAccessDenied = errors.New("access denied", errors.CategoryAuthz).
			WithTextCode(TextCodeAccessDenied).
			WithCode(errors.CodeForbidden)

	// ErrConfigurationFault marks fatal setup defects such as a missing default role.
	ErrConfigurationFault = errors.New("identity service misconfigured", errors.CategoryInternal).
				WithTextCode(TextCodeConfiguration).
				WithCode(errors.CodeInternal)

	ErrTokenExpired = errors.New("token expired", errors.CategoryAuth).
			WithTextCode(TextCodeTokenExpired).
			WithCode(errors.CodeUnauthorized)

	ErrTokenMalformed = errors.New("token malformed", errors.CategoryAuth).
				WithTextCode(TextCodeTokenMalformed).
				WithCode(errors.CodeUnauthorized)
)

// raise clones base so callers never mutate the shared sentinel.
func raise(base *errors.Error, source error, meta map[string]any) *errors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if source != nil {
		clone.Source = source
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

// NewAlreadyExists returns an ErrAlreadyExists carrying the conflicting field.
func NewAlreadyExists(field, value string, source error) error {
	return raise(ErrAlreadyExists, source, map[string]any{field: value})
}

// NewIdentityNotFound returns an ErrIdentityNotFound for login.
func NewIdentityNotFound(login string) error {
	return raise(ErrIdentityNotFound, nil, map[string]any{"login": login})
}

func hasTextCode(err error, code string) bool {
	for err != nil {
		var rich *errors.Error
		if !errors.As(err, &rich) {
			return false
		}
		if rich.TextCode == code {
			return true
		}
		err = rich.Source
	}
	return false
}

func IsAlreadyExists(err error) bool      { return hasTextCode(err, TextCodeIdentityExists) }
func IsInvalidCredentials(err error) bool { return hasTextCode(err, TextCodeInvalidCredentials) }
func IsProviderConflict(err error) bool   { return hasTextCode(err, TextCodeProviderConflict) }
func IsAccessDenied(err error) bool       { return hasTextCode(err, TextCodeAccessDenied) }
func IsConfigurationFault(err error) bool { return hasTextCode(err, TextCodeConfiguration) }

// IsNotFound matches both missing identities and roles outside the catalog.
func IsNotFound(err error) bool {
	return hasTextCode(err, TextCodeIdentityNotFound) ||
		hasTextCode(err, TextCodeRoleNotFound) ||
		errors.IsNotFound(err)
}
