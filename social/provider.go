package social

import (
	"context"
	"strings"
	"time"

	identity "github.com/goliatone/go-identity"
)

// SocialProvider is an OAuth2 authorization code client for one provider.
type SocialProvider interface {
	// Name returns the registration id used in routes, e.g. "github".
	Name() string

	// Kind returns the identity provider tag stored on reconciled identities.
	Kind() identity.Provider

	// AuthCodeURL returns the provider consent URL carrying state.
	AuthCodeURL(state string, opts ...AuthCodeOption) string

	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error)

	// UserInfo loads the account profile behind token.
	UserInfo(ctx context.Context, token *Token) (*SocialProfile, error)
}

// AuthCodeOption configures the authorization URL.
type AuthCodeOption func(*AuthCodeConfig)

// WithScopes adds scopes to the provider defaults.
func WithScopes(scopes ...string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.Scopes = append(c.Scopes, scopes...)
	}
}

// WithPKCE sets the code challenge sent with the authorization request.
func WithPKCE(codeChallenge, method string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.CodeChallenge = codeChallenge
		c.CodeChallengeMethod = method
	}
}

// WithPrompt sets the prompt parameter, e.g. "select_account".
func WithPrompt(prompt string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.Prompt = prompt
	}
}

// ExchangeOption configures the token exchange.
type ExchangeOption func(*ExchangeConfig)

// WithCodeVerifier sets the PKCE verifier for the token exchange.
func WithCodeVerifier(verifier string) ExchangeOption {
	return func(c *ExchangeConfig) {
		c.CodeVerifier = verifier
	}
}

// AuthCodeConfig is the applied form of AuthCodeOption values.
type AuthCodeConfig struct {
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	Prompt              string
}

// ExchangeConfig is the applied form of ExchangeOption values.
type ExchangeConfig struct {
	CodeVerifier string
}

// ApplyAuthCodeOptions applies opts on top of the provider scopes.
func ApplyAuthCodeOptions(scopes []string, opts ...AuthCodeOption) AuthCodeConfig {
	cfg := AuthCodeConfig{Scopes: append([]string(nil), scopes...)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func ApplyExchangeOptions(opts ...ExchangeOption) ExchangeConfig {
	cfg := ExchangeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Token is an OAuth2 token response.
type Token struct {
	AccessToken string
	TokenType   string
	// IDToken is set by OpenID Connect providers.
	IDToken   string
	ExpiresAt time.Time
	Scopes    []string
}

// SocialProfile is the provider account as reported by the provider.
type SocialProfile struct {
	Provider       identity.Provider
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	Username       string
	AvatarURL      string
	ProfileURL     string
	Raw            map[string]any
}

// Federated converts the profile to the reconciler's input.
func (p *SocialProfile) Federated() identity.FederatedProfile {
	return identity.FederatedProfile{
		Provider:       p.Provider,
		ProviderUserID: p.ProviderUserID,
		Email:          p.Email,
		Login:          p.Username,
		DisplayName:    p.Name,
		AvatarURL:      p.AvatarURL,
	}
}

// ProviderFromRegistrationID maps a route registration id to a provider tag.
func ProviderFromRegistrationID(registrationID string) (identity.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(registrationID)) {
	case "google":
		return identity.ProviderGoogle, nil
	case "github":
		return identity.ProviderGitHub, nil
	default:
		return "", providerNotFound(registrationID)
	}
}

func providerNotFound(name string) error {
	clone := ErrProviderNotFound.Clone()
	if clone == nil {
		clone = ErrProviderNotFound
	}
	return clone.WithMetadata(map[string]any{"provider": name})
}
