package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/social"
	"golang.org/x/oauth2"
)

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// Config holds Google OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// IDTokenVerifier, when set, reads the profile from the ID token in the
	// token response instead of calling the userinfo endpoint.
	IDTokenVerifier *IDTokenVerifier

	HTTPClient *http.Client
}

// DefaultScopes returns the default Google scopes.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// Provider implements social.SocialProvider for Google.
type Provider struct {
	config     Config
	httpClient *http.Client
}

var _ social.SocialProvider = (*Provider)(nil)

// New creates a new Google provider.
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
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
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
	return "google"
}

func (p *Provider) Kind() identity.Provider {
	return identity.ProviderGoogle
}

// AuthCodeURL implements social.SocialProvider.
func (p *Provider) AuthCodeURL(state string, opts ...social.AuthCodeOption) string {
	cfg := social.ApplyAuthCodeOptions(p.config.Scopes, opts...)

	oauthCfg := p.oauthConfig(cfg.Scopes)

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
	if cfg.Prompt != "" {
		params = append(params, oauth2.SetAuthURLParam("prompt", cfg.Prompt))
	}

	return oauthCfg.AuthCodeURL(state, params...)
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
	if idToken, ok := tok.Extra("id_token").(string); ok {
		token.IDToken = idToken
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		token.Scopes = strings.Fields(scope)
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

func exchangeError(err error) *social.ProviderError {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return providerError("exchange", 0, "exchange_failed", "token request failed", err, nil)
	}

	status := 0
	if rerr.Response != nil {
		status = rerr.Response.StatusCode
	}

	code, desc := rerr.ErrorCode, rerr.ErrorDescription
	raw := map[string]any{}
	if code != "" {
		raw["error"] = code
	}
	if desc != "" {
		raw["error_description"] = desc
	}
	if code == "" && desc == "" {
		code, desc, raw = parseGoogleError(rerr.Body)
	}
	return providerError("exchange", status, code, desc, nil, raw)
}

// UserInfo implements social.SocialProvider.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.SocialProfile, error) {
	if p.config.IDTokenVerifier != nil && token.IDToken != "" {
		claims, err := p.config.IDTokenVerifier.Verify(token.IDToken)
		if err != nil {
			return nil, err
		}
		return mapProfile(claims.userInfo()), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	status, body, err := p.do(req)
	if err != nil {
		return nil, providerError("user_info", 0, "transport", "userinfo request failed", err, nil)
	}

	if status != http.StatusOK {
		code, description, raw := parseGoogleError(body)
		return nil, providerError("user_info", status, code, description, nil, raw)
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, providerError("user_info", status, "invalid_response", "failed to decode userinfo response", err, nil)
	}
	if info.Sub == "" {
		return nil, providerError("user_info", status, "missing_sub", "userinfo response has no subject", nil, nil)
	}

	return mapProfile(&info), nil
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

type googleOAuthError struct {
	Error     string `json:"error"`
	ErrorDesc string `json:"error_description"`
}

func (r googleOAuthError) errorMetadata() map[string]any {
	meta := map[string]any{}
	if r.Error != "" {
		meta["error"] = r.Error
	}
	if r.ErrorDesc != "" {
		meta["error_description"] = r.ErrorDesc
	}
	return meta
}

type googleAPIError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// parseGoogleError understands both the OAuth error shape and the API error envelope.
func parseGoogleError(body []byte) (string, string, map[string]any) {
	var plain googleOAuthError
	if err := json.Unmarshal(body, &plain); err == nil && (plain.Error != "" || plain.ErrorDesc != "") {
		return plain.Error, plain.ErrorDesc, plain.errorMetadata()
	}

	var api googleAPIError
	if err := json.Unmarshal(body, &api); err == nil && (api.Error.Message != "" || api.Error.Status != "") {
		code := api.Error.Status
		if code == "" && api.Error.Code != 0 {
			code = fmt.Sprintf("%d", api.Error.Code)
		}
		return code, api.Error.Message, map[string]any{
			"status":  api.Error.Status,
			"message": api.Error.Message,
			"code":    api.Error.Code,
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "google request failed"
	}
	return "", msg, nil
}

func providerError(operation string, status int, code, description string, err error, raw map[string]any) *social.ProviderError {
	return &social.ProviderError{
		Provider:    "google",
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
		Raw:         raw,
	}
}
