package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
)

// FederatedProfile is a provider profile normalized for reconciliation.
type FederatedProfile struct {
	Provider       Provider
	ProviderUserID string
	// Email may be empty when the provider hides it.
	Email string
	// Login is the provider handle, used as the login of new GitHub identities.
	Login       string
	DisplayName string
	AvatarURL   string
}

// LoginCollisionPolicy decides what happens when a synthesized login is taken.
type LoginCollisionPolicy string

const (
	// CollisionReject lets the store's unique login constraint fail the create
	// with ErrAlreadyExists.
	CollisionReject LoginCollisionPolicy = "reject"
	// CollisionSuffix appends -2, -3, ... until a free login is found.
	CollisionSuffix LoginCollisionPolicy = "suffix"
)

const maxLoginSuffix = 50

// ParseLoginCollisionPolicy maps a config value to a policy; empty means reject.
func ParseLoginCollisionPolicy(s string) (LoginCollisionPolicy, error) {
	switch LoginCollisionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", CollisionReject:
		return CollisionReject, nil
	case CollisionSuffix:
		return CollisionSuffix, nil
	default:
		return "", raise(ErrConfigurationFault, nil, map[string]any{
			"reason": "unknown login collision policy",
			"policy": s,
		})
	}
}

// ReconcileResult is the outcome of a federated login.
type ReconcileResult struct {
	SigninResult
	Identity      *Identity
	IsNewIdentity bool
}

// Reconciler maps federated profiles onto existing or new identities.
// It never calls out to the network; callers resolve emails beforehand.
type Reconciler struct {
	store          Store
	issuer         TokenIssuer
	policy         LoginCollisionPolicy
	logger         Logger
	loggerProvider LoggerProvider
	activitySink   ActivitySink
}

// NewReconciler returns a Reconciler using the reject collision policy.
func NewReconciler(store Store, issuer TokenIssuer) *Reconciler {
	provider, logger := ResolveLogger("identity.reconciler", nil, nil)
	return &Reconciler{
		store:          store,
		issuer:         issuer,
		policy:         CollisionReject,
		logger:         logger,
		loggerProvider: provider,
		activitySink:   noopActivitySink{},
	}
}

func (r *Reconciler) WithLogger(logger Logger) *Reconciler {
	r.loggerProvider, r.logger = ResolveLogger("identity.reconciler", nil, logger)
	return r
}

func (r *Reconciler) WithLoggerProvider(provider LoggerProvider) *Reconciler {
	r.loggerProvider, r.logger = ResolveLogger("identity.reconciler", provider, r.logger)
	return r
}

func (r *Reconciler) WithActivitySink(sink ActivitySink) *Reconciler {
	r.activitySink = normalizeActivitySink(sink)
	return r
}

func (r *Reconciler) WithCollisionPolicy(policy LoginCollisionPolicy) *Reconciler {
	if policy != "" {
		r.policy = policy
	}
	return r
}

// Reconcile dispatches on the profile's provider.
func (r *Reconciler) Reconcile(ctx context.Context, profile FederatedProfile) (*ReconcileResult, error) {
	switch profile.Provider {
	case ProviderGoogle:
		return r.ReconcileGoogle(ctx, profile)
	case ProviderGitHub:
		return r.ReconcileGitHub(ctx, profile)
	default:
		return nil, errors.New("unsupported federated provider", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest).
			WithMetadata(map[string]any{"provider": string(profile.Provider)})
	}
}

// ReconcileGoogle resolves a Google profile by email. A local identity with
// that email is never annexed.
func (r *Reconciler) ReconcileGoogle(ctx context.Context, profile FederatedProfile) (*ReconcileResult, error) {
	profile.Provider = ProviderGoogle
	profile.Email = strings.TrimSpace(profile.Email)
	if profile.Email == "" || !strings.Contains(profile.Email, "@") {
		return nil, r.fail(ctx, profile, invalidProfile(profile, "google profile has no usable email"))
	}

	matches, err := r.store.FindByEmail(ctx, profile.Email)
	if err != nil {
		return nil, r.fail(ctx, profile, err)
	}

	existing, err := pickEmailMatch(matches, ProviderGoogle)
	if err != nil {
		return nil, r.fail(ctx, profile, err)
	}
	if existing != nil {
		return r.refresh(ctx, existing, profile)
	}

	return r.create(ctx, profile, localPart(profile.Email), profile.Email)
}

// ReconcileGitHub resolves a GitHub profile by GitHub user id. Accounts
// without a visible email get a placeholder address.
func (r *Reconciler) ReconcileGitHub(ctx context.Context, profile FederatedProfile) (*ReconcileResult, error) {
	profile.Provider = ProviderGitHub
	if strings.TrimSpace(profile.ProviderUserID) == "" {
		return nil, r.fail(ctx, profile, invalidProfile(profile, "github profile has no id"))
	}

	existing, err := r.store.GetByExternalID(ctx, ProviderGitHub, profile.ProviderUserID)
	switch {
	case err == nil:
		if existing.Provider == ProviderLocal {
			return nil, r.fail(ctx, profile, providerConflict(existing, profile))
		}
		return r.refresh(ctx, existing, profile)
	case !IsNotFound(err):
		return nil, r.fail(ctx, profile, err)
	}

	if strings.TrimSpace(profile.Login) == "" {
		return nil, r.fail(ctx, profile, invalidProfile(profile, "github profile has no login"))
	}

	email := strings.TrimSpace(profile.Email)
	if email == "" {
		email = PlaceholderEmail(ProviderGitHub, profile.Login, profile.ProviderUserID)
	}

	return r.create(ctx, profile, profile.Login, email)
}

// PlaceholderEmail builds the non routable address used when a provider
// withholds the account email, e.g. octo_42@noreply.github.oauth.
func PlaceholderEmail(provider Provider, login, providerUserID string) string {
	return fmt.Sprintf("%s_%s@noreply.%s.oauth", login, providerUserID, strings.ToLower(string(provider)))
}

func (r *Reconciler) refresh(ctx context.Context, existing *Identity, profile FederatedProfile) (*ReconcileResult, error) {
	if !existing.Active {
		r.logger.Warn("federated login for inactive identity", "login", existing.Login, "provider", profile.Provider)
		return nil, r.fail(ctx, profile, raise(ErrInvalidCredentials, nil, map[string]any{"login": existing.Login}))
	}

	existing.FullName = profile.DisplayName
	existing.AvatarURL = profile.AvatarURL
	existing.SetExternalID(profile.Provider, profile.ProviderUserID)

	if err := r.store.Update(ctx, existing); err != nil {
		return nil, r.fail(ctx, profile, err)
	}

	return r.finish(ctx, existing, profile, false)
}

func (r *Reconciler) create(ctx context.Context, profile FederatedProfile, login, email string) (*ReconcileResult, error) {
	identity := &Identity{
		Login:     login,
		Email:     email,
		Provider:  profile.Provider,
		Active:    true,
		FullName:  profile.DisplayName,
		AvatarURL: profile.AvatarURL,
	}
	identity.SetExternalID(profile.Provider, profile.ProviderUserID)

	err := r.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := ensureDefaultRole(ctx, tx); err != nil {
			return err
		}

		resolved, err := r.resolveLogin(ctx, tx, login)
		if err != nil {
			return err
		}
		identity.Login = resolved

		if err := identity.Validate(); err != nil {
			return err
		}
		if err := tx.Create(ctx, identity); err != nil {
			return err
		}
		return tx.ReplaceAssignments(ctx, identity.Login, []RoleType{DefaultRole})
	})
	if err != nil {
		return nil, r.fail(ctx, profile, err)
	}

	r.logger.Info("federated identity created", "login", identity.Login, "provider", profile.Provider)
	return r.finish(ctx, identity, profile, true)
}

// resolveLogin applies the collision policy to a synthesized login.
func (r *Reconciler) resolveLogin(ctx context.Context, tx Store, login string) (string, error) {
	if r.policy != CollisionSuffix {
		return login, nil
	}

	candidate := login
	for n := 2; n <= maxLoginSuffix+1; n++ {
		taken, err := tx.ExistsLogin(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", login, n)
	}
	return "", NewAlreadyExists("login", login, nil)
}

func (r *Reconciler) finish(ctx context.Context, identity *Identity, profile FederatedProfile, created bool) (*ReconcileResult, error) {
	signin, err := IssueFor(ctx, r.store, r.issuer, identity)
	if err != nil {
		return nil, r.fail(ctx, profile, err)
	}

	recordActivity(ctx, r.activitySink, r.logger, ActivityEvent{
		EventType: ActivityEventFederatedLogin,
		Actor:     identity.Login,
		Login:     identity.Login,
		Provider:  profile.Provider,
		Metadata: map[string]any{
			"provider_user_id": profile.ProviderUserID,
			"created":          created,
		},
	})

	return &ReconcileResult{
		SigninResult:  *signin,
		Identity:      identity,
		IsNewIdentity: created,
	}, nil
}

func (r *Reconciler) fail(ctx context.Context, profile FederatedProfile, err error) error {
	r.logger.Error("federated login failed", "provider", profile.Provider, "provider_user_id", profile.ProviderUserID, "error", err)
	recordActivity(ctx, r.activitySink, r.logger, ActivityEvent{
		EventType: ActivityEventFederatedError,
		Actor:     "anonymous",
		Provider:  profile.Provider,
		Metadata: map[string]any{
			"provider_user_id": profile.ProviderUserID,
			"error":            err.Error(),
		},
	})
	return err
}

// pickEmailMatch chooses among identities sharing an email. Only an identity
// of the same provider is reused; a local one is a conflict. Identities of
// other federated providers are ignored and a new identity gets created.
func pickEmailMatch(matches []*Identity, provider Provider) (*Identity, error) {
	var local *Identity
	for _, m := range matches {
		switch m.Provider {
		case provider:
			return m, nil
		case ProviderLocal:
			local = m
		}
	}
	if local != nil {
		return nil, raise(ErrProviderConflict, nil, map[string]any{
			"login":    local.Login,
			"provider": string(provider),
		})
	}
	return nil, nil
}

func providerConflict(existing *Identity, profile FederatedProfile) error {
	return raise(ErrProviderConflict, nil, map[string]any{
		"login":    existing.Login,
		"provider": string(profile.Provider),
	})
}

func invalidProfile(profile FederatedProfile, msg string) error {
	return errors.New(msg, errors.CategoryBadInput).
		WithCode(errors.CodeBadRequest).
		WithMetadata(map[string]any{"provider": string(profile.Provider)})
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
