package social

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
)

// FederatedReconciler maps a provider profile to a local identity and token.
type FederatedReconciler interface {
	Reconcile(ctx context.Context, profile identity.FederatedProfile) (*identity.ReconcileResult, error)
}

// SocialAuthenticator drives the authorization code flow: it builds the
// consent redirect, then turns the callback into a reconciled identity.
type SocialAuthenticator struct {
	providers      map[string]SocialProvider
	stateManager   StateManager
	reconciler     FederatedReconciler
	config         SocialAuthConfig
	logger         identity.Logger
	loggerProvider identity.LoggerProvider
	now            func() time.Time
}

// SocialAuthConfig configures the social authenticator.
type SocialAuthConfig struct {
	StateTTL time.Duration
	// DefaultRedirectURL is carried in the state when BeginAuth gets none.
	DefaultRedirectURL string
	// DisablePKCE skips the code challenge for providers that reject it.
	DisablePKCE bool
}

// SocialAuthOption configures the social authenticator.
type SocialAuthOption func(*SocialAuthenticator)

// NewSocialAuthenticator wires providers to a reconciler.
func NewSocialAuthenticator(
	reconciler FederatedReconciler,
	stateManager StateManager,
	config SocialAuthConfig,
	opts ...SocialAuthOption,
) *SocialAuthenticator {
	if config.StateTTL <= 0 {
		config.StateTTL = DefaultStateTTL
	}

	provider, logger := identity.ResolveLogger("identity.social", nil, nil)
	sa := &SocialAuthenticator{
		providers:      make(map[string]SocialProvider),
		stateManager:   stateManager,
		reconciler:     reconciler,
		config:         config,
		logger:         logger,
		loggerProvider: provider,
		now:            time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sa)
		}
	}

	return sa
}

// WithProvider registers a provider under its Name.
func WithProvider(provider SocialProvider) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		if provider == nil {
			return
		}
		sa.providers[strings.ToLower(provider.Name())] = provider
	}
}

func WithLogger(logger identity.Logger) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.loggerProvider, sa.logger = identity.ResolveLogger("identity.social", nil, logger)
	}
}

func WithLoggerProvider(provider identity.LoggerProvider) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.loggerProvider, sa.logger = identity.ResolveLogger("identity.social", provider, sa.logger)
	}
}

// Provider returns the registered provider for name.
func (sa *SocialAuthenticator) Provider(name string) (SocialProvider, error) {
	provider, ok := sa.providers[strings.ToLower(name)]
	if !ok {
		return nil, providerNotFound(name)
	}
	return provider, nil
}

// AuthRedirect is the consent URL a browser should be sent to.
type AuthRedirect struct {
	URL      string
	State    string
	Provider string
}

// BeginAuth prepares the provider consent redirect with a sealed state.
func (sa *SocialAuthenticator) BeginAuth(ctx context.Context, providerName, redirectURL string) (*AuthRedirect, error) {
	provider, err := sa.Provider(providerName)
	if err != nil {
		return nil, err
	}
	if redirectURL == "" {
		redirectURL = sa.config.DefaultRedirectURL
	}

	now := sa.now()
	state := &OAuthState{
		Provider:    provider.Name(),
		RedirectURL: redirectURL,
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(sa.config.StateTTL).Unix(),
	}

	var opts []AuthCodeOption
	if !sa.config.DisablePKCE {
		verifier, err := generateCodeVerifier()
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate code verifier")
		}
		state.CodeVerifier = verifier
		opts = append(opts, WithPKCE(computeCodeChallenge(verifier), "S256"))
	}

	token, err := sa.stateManager.Encode(state)
	if err != nil {
		return nil, err
	}

	sa.logger.Debug("oauth authorization started", "provider", provider.Name())

	return &AuthRedirect{
		URL:      provider.AuthCodeURL(token, opts...),
		State:    token,
		Provider: provider.Name(),
	}, nil
}

// AuthResult is a completed federated login.
type AuthResult struct {
	*identity.ReconcileResult
	Provider    string
	Profile     *SocialProfile
	RedirectURL string
}

// CompleteAuth verifies the callback state, loads the provider profile and
// reconciles it. When the provider withheld the email and can look it up,
// the primary verified address is fetched first; lookup failures are logged
// and the flow continues without an email.
func (sa *SocialAuthenticator) CompleteAuth(ctx context.Context, providerName, code, stateToken string) (*AuthResult, error) {
	state, err := sa.stateManager.Decode(stateToken)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(state.Provider, providerName) {
		return nil, invalidState("provider mismatch")
	}

	provider, err := sa.Provider(providerName)
	if err != nil {
		return nil, err
	}

	token, err := provider.Exchange(ctx, code, WithCodeVerifier(state.CodeVerifier))
	if err != nil {
		sa.logger.Error("oauth code exchange failed", "provider", provider.Name(), "error", err)
		return nil, wrapProviderError(ErrTokenExchangeFailed, provider.Name(), "exchange", err)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		sa.logger.Error("oauth user info failed", "provider", provider.Name(), "error", err)
		return nil, wrapProviderError(ErrUserInfoFailed, provider.Name(), "user_info", err)
	}
	profile.Provider = provider.Kind()

	if profile.Email == "" {
		sa.lookupEmail(ctx, provider, token, profile)
	}

	result, err := sa.reconciler.Reconcile(ctx, profile.Federated())
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		ReconcileResult: result,
		Provider:        provider.Name(),
		Profile:         profile,
		RedirectURL:     state.RedirectURL,
	}, nil
}

func (sa *SocialAuthenticator) lookupEmail(ctx context.Context, provider SocialProvider, token *Token, profile *SocialProfile) {
	lookup, ok := provider.(identity.EmailLookup)
	if !ok {
		return
	}

	email, err := lookup.PrimaryVerifiedEmail(ctx, token.AccessToken)
	if err != nil {
		sa.logger.Warn("primary email lookup failed", "provider", provider.Name(), "provider_user_id", profile.ProviderUserID, "error", err)
		return
	}

	profile.Email = email
	profile.EmailVerified = email != ""
}

// ProviderNames lists the registered registration ids in order.
func (sa *SocialAuthenticator) ProviderNames() []string {
	names := make([]string, 0, len(sa.providers))
	for name := range sa.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
