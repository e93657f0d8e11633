package identity

import (
	"context"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used across the package.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider = glog.LoggerProvider

// ResolveLogger resolves a named logger with precedence provider > logger > nop.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	return glog.Resolve(name, provider, logger)
}

// IdentityStore is the persistence surface for identity records.
// Lookups return an error in the not found category when nothing matches.
type IdentityStore interface {
	GetByLogin(ctx context.Context, login string) (*Identity, error)
	GetByExternalID(ctx context.Context, provider Provider, externalID string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) ([]*Identity, error)
	ExistsLogin(ctx context.Context, login string) (bool, error)
	ExistsEmailForProvider(ctx context.Context, email string, provider Provider) (bool, error)
	Create(ctx context.Context, identity *Identity) error
	Update(ctx context.Context, identity *Identity) error
}

// RoleStore is the persistence surface for the role catalog and assignments.
type RoleStore interface {
	ReplaceAssignments(ctx context.Context, login string, roles []RoleType) error
	AssignmentsOf(ctx context.Context, login string) ([]RoleType, error)
	CatalogContains(ctx context.Context, role RoleType) (bool, error)
}

// Store groups identity and role persistence. RunInTx hands fn a Store
// bound to a single transaction; returning an error rolls it back.
type Store interface {
	IdentityStore
	RoleStore
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// TokenIssuer mints bearer tokens for an authenticated principal.
type TokenIssuer interface {
	Issue(ctx context.Context, principal Principal) (string, error)
}

// TokenValidator parses bearer tokens minted by a TokenIssuer.
type TokenValidator interface {
	Validate(token string) (*Claims, error)
}

// EmailLookup resolves the primary verified email of a provider account.
type EmailLookup interface {
	PrimaryVerifiedEmail(ctx context.Context, accessToken string) (string, error)
}
