// Package config loads the identityd settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "IDENTITY_"

type Config struct {
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:identity.db?cache=shared"`
	ServerAddr  string `env:"SERVER_ADDR" envDefault:":8080"`

	// GlobalSecret salts every local credential. Rotating it invalidates
	// all stored digests.
	GlobalSecret string `env:"GLOBAL_SECRET"`

	JWT    JWTConfig    `envPrefix:"JWT_"`
	OAuth  OAuthConfig  `envPrefix:"OAUTH_"`
	Google GoogleConfig `envPrefix:"GOOGLE_"`
	GitHub GitHubConfig `envPrefix:"GITHUB_"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"pretty"`
	Debug     bool   `env:"DEBUG"`
}

type JWTConfig struct {
	SigningKey string        `env:"SIGNING_KEY"`
	Issuer     string        `env:"ISSUER" envDefault:"identity"`
	Audience   []string      `env:"AUDIENCE" envSeparator:","`
	TTL        time.Duration `env:"TTL" envDefault:"24h"`
}

type OAuthConfig struct {
	StateTTL        time.Duration `env:"STATE_TTL" envDefault:"10m"`
	SuccessRedirect string        `env:"SUCCESS_REDIRECT" envDefault:"/oauth2/redirect"`
	FailureRedirect string        `env:"FAILURE_REDIRECT" envDefault:"/login"`
	CollisionPolicy string        `env:"LOGIN_COLLISION_POLICY" envDefault:"reject"`
	DisablePKCE     bool          `env:"DISABLE_PKCE"`
}

type GoogleConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	CallbackURL  string   `env:"CALLBACK_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
	// JWKSURL enables ID token verification when set.
	JWKSURL string `env:"JWKS_URL"`
}

type GitHubConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	CallbackURL  string   `env:"CALLBACK_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// Enabled reports whether the Google client is configured.
func (c GoogleConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Enabled reports whether the GitHub client is configured.
func (c GitHubConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Load reads the process environment.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads the given variables instead of the process environment
// when environ is not nil.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.JWT.Audience = compact(c.JWT.Audience)
	c.Google.Scopes = compact(c.Google.Scopes)
	c.GitHub.Scopes = compact(c.GitHub.Scopes)
}

// Validate fails when the service cannot start safely with c.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.DatabaseURL, validation.Required),
		validation.Field(&c.ServerAddr, validation.Required),
		validation.Field(&c.GlobalSecret, validation.Required),
		validation.Field(&c.LogLevel, validation.In("trace", "debug", "info", "warn", "error", "fatal")),
		validation.Field(&c.LogFormat, validation.In("pretty", "console", "json")),
	)
	if err == nil {
		err = validation.ValidateStruct(&c.JWT,
			validation.Field(&c.JWT.SigningKey, validation.Required, validation.Length(16, 0)),
			validation.Field(&c.JWT.TTL, validation.Required, validation.Min(time.Second)),
		)
	}
	if err == nil && c.Google.Enabled() {
		err = validation.ValidateStruct(&c.Google,
			validation.Field(&c.Google.CallbackURL, validation.Required, is.URL),
		)
	}
	if err == nil && c.GitHub.Enabled() {
		err = validation.ValidateStruct(&c.GitHub,
			validation.Field(&c.GitHub.CallbackURL, validation.Required, is.URL),
		)
	}
	if err != nil {
		return errors.FromOzzoValidation(err, "invalid configuration").
			WithTextCode(identity.TextCodeConfiguration)
	}

	if _, err := identity.ParseLoginCollisionPolicy(c.OAuth.CollisionPolicy); err != nil {
		return err
	}
	return nil
}

// SocialEnabled reports whether any federated provider is configured.
func (c *Config) SocialEnabled() bool {
	return c.Google.Enabled() || c.GitHub.Enabled()
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
