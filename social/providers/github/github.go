package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/social"
	"golang.org/x/oauth2"
)

const (
	defaultAuthURL   = "https://github.com/login/oauth/authorize"
	defaultTokenURL  = "https://github.com/login/oauth/access_token"
	defaultUserURL   = "https://api.github.com/user"
	defaultEmailsURL = "https://api.github.com/user/emails"
)

// Config holds GitHub OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL   string
	TokenURL  string
	UserURL   string
	EmailsURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default GitHub scopes.
func DefaultScopes() []string {
	return []string{"user:email", "read:user"}
}

// Provider implements social.SocialProvider and identity.EmailLookup for GitHub.
type Provider struct {
	config     Config
	httpClient *http.Client
}

var (
	_ social.SocialProvider = (*Provider)(nil)
	_ identity.EmailLookup  = (*Provider)(nil)
)

// New creates a new GitHub provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserURL == "" {
		cfg.UserURL = defaultUserURL
	}
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = defaultEmailsURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Provider{
		config:     cfg,
		httpClient: client,
	}
}

func (p *Provider) Name() string {
	return "github"
}

func (p *Provider) Kind() identity.Provider {
	return identity.ProviderGitHub
}

// AuthCodeURL implements social.SocialProvider.
func (p *Provider) AuthCodeURL(state string, opts ...social.AuthCodeOption) string {
	cfg := social.ApplyAuthCodeOptions(p.config.Scopes, opts...)

	var params []oauth2.AuthCodeOption
	if cfg.CodeChallenge != "" {
		method := cfg.CodeChallengeMethod
		if method == "" {
			method = "S256"
		}
		params = append(params,
			oauth2.SetAuthURLParam("code_challenge", cfg.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", method),
		)
	}

	return p.oauthConfig(cfg.Scopes).AuthCodeURL(state, params...)
}

// Exchange implements social.SocialProvider.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	cfg := social.ApplyExchangeOptions(opts...)

	var params []oauth2.AuthCodeOption
	if cfg.CodeVerifier != "" {
		params = append(params, oauth2.VerifierOption(cfg.CodeVerifier))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.oauthConfig(p.config.Scopes).Exchange(ctx, code, params...)
	if err != nil {
		return nil, exchangeError(err)
	}

	token := &social.Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		token.Scopes = splitCommaScopes(scope)
	}
	return token, nil
}

func (p *Provider) oauthConfig(scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		RedirectURL:  p.config.CallbackURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.config.AuthURL,
			TokenURL:  p.config.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// exchangeError normalizes token endpoint failures. GitHub reports them with
// a 200 and an error field, which oauth2 surfaces as a RetrieveError too.
func exchangeError(err error) *social.ProviderError {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return providerError("exchange", 0, "exchange_failed", "token request failed", err, nil)
	}

	status := 0
	if rerr.Response != nil {
		status = rerr.Response.StatusCode
	}

	desc := rerr.ErrorDescription
	if rerr.ErrorCode == "" && desc == "" {
		desc = apiErrorMessage(rerr.Body)
	}

	raw := map[string]any{}
	if rerr.ErrorCode != "" {
		raw["error"] = rerr.ErrorCode
	}
	if rerr.ErrorDescription != "" {
		raw["error_description"] = rerr.ErrorDescription
	}
	if rerr.ErrorURI != "" {
		raw["error_uri"] = rerr.ErrorURI
	}
	return providerError("exchange", status, rerr.ErrorCode, desc, nil, raw)
}

// UserInfo loads the GitHub user. The email is whatever the account makes
// public and may be empty; see PrimaryVerifiedEmail.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.SocialProfile, error) {
	user, err := p.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}
	return mapProfile(user), nil
}

// PrimaryVerifiedEmail returns the address GitHub marks both primary and
// verified, or an error when there is none.
func (p *Provider) PrimaryVerifiedEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := p.apiRequest(ctx, p.config.EmailsURL, accessToken)
	if err != nil {
		return "", err
	}

	status, body, err := p.do(req)
	if err != nil {
		return "", providerError("emails", 0, "transport", "emails request failed", err, nil)
	}
	if status != http.StatusOK {
		return "", providerError("emails", status, "", apiErrorMessage(body), nil, nil)
	}

	var emails []githubEmail
	if err := json.Unmarshal(body, &emails); err != nil {
		return "", providerError("emails", status, "invalid_response", "failed to decode emails response", err, nil)
	}

	for _, e := range emails {
		if e.Primary && e.Verified && e.Email != "" {
			return e.Email, nil
		}
	}

	return "", providerError("emails", status, "email_not_found", "no primary verified email", nil, nil)
}

func (p *Provider) fetchUser(ctx context.Context, accessToken string) (*githubUser, error) {
	req, err := p.apiRequest(ctx, p.config.UserURL, accessToken)
	if err != nil {
		return nil, err
	}

	status, body, err := p.do(req)
	if err != nil {
		return nil, providerError("user_info", 0, "transport", "user request failed", err, nil)
	}
	if status != http.StatusOK {
		return nil, providerError("user_info", status, "", apiErrorMessage(body), nil, nil)
	}

	var user githubUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, providerError("user_info", status, "invalid_response", "failed to decode user response", err, nil)
	}
	if user.ID == 0 {
		return nil, providerError("user_info", status, "missing_id", "user response has no id", nil, nil)
	}

	return &user, nil
}

func (p *Provider) apiRequest(ctx context.Context, endpoint, accessToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	return req, nil
}

func (p *Provider) do(req *http.Request) (int, []byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

type githubAPIError struct {
	Message string `json:"message"`
}

func apiErrorMessage(body []byte) string {
	var apiErr githubAPIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "github request failed"
	}
	return msg
}

func splitCommaScopes(scopes string) []string {
	if scopes == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(scopes, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func providerError(operation string, status int, code, description string, err error, raw map[string]any) *social.ProviderError {
	return &social.ProviderError{
		Provider:    "github",
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
		Raw:         raw,
	}
}
