package identity

import (
	"context"
	"strings"
)

// SigninResult is returned by a successful signin or federated login.
type SigninResult struct {
	Token     string    `json:"token"`
	Login     string    `json:"login"`
	Roles     []string  `json:"roles"`
	Principal Principal `json:"-"`
}

// Authenticator registers and authenticates local identities.
type Authenticator struct {
	store          Store
	hasher         *CredentialHasher
	issuer         TokenIssuer
	logger         Logger
	loggerProvider LoggerProvider
	activitySink   ActivitySink
}

// NewAuthenticator returns an Authenticator.
func NewAuthenticator(store Store, hasher *CredentialHasher, issuer TokenIssuer) *Authenticator {
	provider, logger := ResolveLogger("identity.auth", nil, nil)
	return &Authenticator{
		store:          store,
		hasher:         hasher,
		issuer:         issuer,
		logger:         logger,
		loggerProvider: provider,
		activitySink:   noopActivitySink{},
	}
}

func (a *Authenticator) WithLogger(logger Logger) *Authenticator {
	a.loggerProvider, a.logger = ResolveLogger("identity.auth", nil, logger)
	return a
}

func (a *Authenticator) WithLoggerProvider(provider LoggerProvider) *Authenticator {
	a.loggerProvider, a.logger = ResolveLogger("identity.auth", provider, a.logger)
	return a
}

// WithActivitySink configures an ActivitySink for signup and signin events.
func (a *Authenticator) WithActivitySink(sink ActivitySink) *Authenticator {
	a.activitySink = normalizeActivitySink(sink)
	return a
}

// Signup creates a local identity with the default role. The identity row
// and its role assignment are written in one transaction.
func (a *Authenticator) Signup(ctx context.Context, login, email, password string) (*Identity, error) {
	login = strings.TrimSpace(login)
	email = strings.TrimSpace(email)

	taken, err := a.store.ExistsLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, NewAlreadyExists("login", login, nil)
	}

	taken, err = a.store.ExistsEmailForProvider(ctx, email, ProviderLocal)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, NewAlreadyExists("email", email, nil)
	}

	hash := a.hasher.Hash(password, login, email)
	identity := &Identity{
		Login:        login,
		Email:        email,
		PasswordHash: &hash,
		Provider:     ProviderLocal,
		Active:       true,
	}
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	err = a.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := ensureDefaultRole(ctx, tx); err != nil {
			return err
		}
		if err := tx.Create(ctx, identity); err != nil {
			return err
		}
		return tx.ReplaceAssignments(ctx, identity.Login, []RoleType{DefaultRole})
	})
	if err != nil {
		a.logger.Error("signup failed", "login", login, "error", err)
		return nil, err
	}

	a.logger.Info("identity registered", "login", login)
	recordActivity(ctx, a.activitySink, a.logger, ActivityEvent{
		EventType: ActivityEventSignup,
		Actor:     login,
		Login:     login,
		Provider:  ProviderLocal,
	})

	return identity, nil
}

// Signin verifies local credentials and issues a token for the identity's
// current roles. Every rejection is reported as ErrInvalidCredentials.
func (a *Authenticator) Signin(ctx context.Context, login, password string) (*SigninResult, error) {
	login = strings.TrimSpace(login)

	identity, err := a.store.GetByLogin(ctx, login)
	if err != nil {
		if IsNotFound(err) {
			return nil, a.rejectSignin(ctx, login, "unknown login")
		}
		return nil, err
	}

	if !identity.Active {
		return nil, a.rejectSignin(ctx, login, "inactive identity")
	}

	if !identity.HasPassword() {
		return nil, a.rejectSignin(ctx, login, "identity has no local password")
	}

	if !a.hasher.Verify(password, *identity.PasswordHash, identity.Login, identity.Email) {
		return nil, a.rejectSignin(ctx, login, "password mismatch")
	}

	result, err := IssueFor(ctx, a.store, a.issuer, identity)
	if err != nil {
		a.logger.Error("signin token issue failed", "login", login, "error", err)
		return nil, err
	}

	a.logger.Debug("signin succeeded", "login", login)
	recordActivity(ctx, a.activitySink, a.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     login,
		Login:     login,
		Provider:  identity.Provider,
	})

	return result, nil
}

func (a *Authenticator) rejectSignin(ctx context.Context, login, reason string) error {
	a.logger.Warn("signin rejected", "login", login, "reason", reason)
	recordActivity(ctx, a.activitySink, a.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     login,
		Login:     login,
		Metadata:  map[string]any{"reason": reason},
	})
	return raise(ErrInvalidCredentials, nil, nil)
}

// IssueFor resolves the current roles of identity and asks issuer for a
// token scoped to them.
func IssueFor(ctx context.Context, roles RoleStore, issuer TokenIssuer, identity *Identity) (*SigninResult, error) {
	assigned, err := roles.AssignmentsOf(ctx, identity.Login)
	if err != nil {
		return nil, err
	}

	principal := NewPrincipal(identity, assigned)
	token, err := issuer.Issue(ctx, principal)
	if err != nil {
		return nil, err
	}

	return &SigninResult{
		Token:     token,
		Login:     principal.Login,
		Roles:     principal.Authorities,
		Principal: principal,
	}, nil
}
