package jwtware

import (
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
)

// SigningKey pairs a verification key with the algorithm it accepts.
type SigningKey struct {
	JWTAlg string
	Key    any
}

// KeySetValidator validates identity tokens against a key set selected by
// the token kid. It lets services that only hold public keys, or several
// rotating keys, accept tokens minted by the identity service.
type KeySetValidator struct {
	keyfunc  jwt.Keyfunc
	jwks     *keyfunc.JWKS
	methods  []string
	issuer   string
	audience []string
	now      func() time.Time
}

var _ identity.TokenValidator = (*KeySetValidator)(nil)

// NewKeySetValidator builds a validator from kid indexed signing keys.
func NewKeySetValidator(keys map[string]SigningKey) *KeySetValidator {
	givenKeys := make(map[string]keyfunc.GivenKey, len(keys))
	methods := make([]string, 0, len(keys))
	for kid, key := range keys {
		givenKeys[kid] = keyfunc.NewGivenCustom(key.Key, keyfunc.GivenKeyOptions{
			Algorithm: key.JWTAlg,
		})
		if key.JWTAlg != "" {
			methods = append(methods, key.JWTAlg)
		}
	}

	jwks := keyfunc.NewGiven(givenKeys)
	return &KeySetValidator{keyfunc: jwks.Keyfunc, jwks: jwks, methods: methods, now: time.Now}
}

// NewJWKSValidator builds a validator that fetches and refreshes a remote JWK Set.
func NewJWKSValidator(jwksURL string, logger identity.Logger) (*KeySetValidator, error) {
	_, logger = identity.ResolveLogger("identity.jwtware", nil, logger)

	jwks, err := keyfunc.Get(jwksURL, keyfuncOptions(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to get JWK Set from %s: %w", jwksURL, err)
	}
	return &KeySetValidator{keyfunc: jwks.Keyfunc, jwks: jwks, now: time.Now}, nil
}

func keyfuncOptions(logger identity.Logger) keyfunc.Options {
	return keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Error("failed to do a background refresh of JWT set", "error", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
}

// WithIssuer requires the iss claim to equal issuer.
func (v *KeySetValidator) WithIssuer(issuer string) *KeySetValidator {
	v.issuer = issuer
	return v
}

// WithAudience requires the aud claim to contain one of audience.
func (v *KeySetValidator) WithAudience(audience ...string) *KeySetValidator {
	v.audience = audience
	return v
}

func (v *KeySetValidator) WithClock(now func() time.Time) *KeySetValidator {
	if now != nil {
		v.now = now
	}
	return v
}

// Close stops the background refresh of a remote key set.
func (v *KeySetValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func (v *KeySetValidator) Validate(tokenString string) (*identity.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if len(v.methods) > 0 {
		opts = append(opts, jwt.WithValidMethods(v.methods))
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if len(v.audience) > 0 {
		opts = append(opts, jwt.WithAudience(v.audience...))
	}

	claims := &identity.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc, opts...)
	if err != nil {
		base := identity.ErrTokenMalformed
		if errors.Is(err, jwt.ErrTokenExpired) {
			base = identity.ErrTokenExpired
		}
		rich := base.Clone()
		rich.Source = err
		return nil, rich
	}

	if !token.Valid {
		return nil, identity.ErrTokenMalformed.Clone()
	}
	return claims, nil
}
