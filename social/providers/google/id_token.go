package google

import (
	"slices"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/social"
)

// DefaultJWKSURL is Google's OpenID Connect signing key set.
const DefaultJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// IDTokenVerifier checks Google ID tokens against a JWKS.
type IDTokenVerifier struct {
	jwks     *keyfunc.JWKS
	clientID string
	issuers  []string
	now      func() time.Time
	logger   identity.Logger
}

// NewIDTokenVerifier fetches the key set at jwksURL and refreshes it in the
// background. Call Close to stop the refresh goroutine.
func NewIDTokenVerifier(jwksURL, clientID string, logger identity.Logger) (*IDTokenVerifier, error) {
	if jwksURL == "" {
		jwksURL = DefaultJWKSURL
	}
	_, logger = identity.ResolveLogger("identity.social.google", nil, logger)

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Warn("google jwks background refresh failed", "url", jwksURL, "error", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to load google jwks")
	}

	return newVerifier(jwks, clientID, logger), nil
}

// NewIDTokenVerifierWithKeys verifies against a fixed key set, keyed by kid.
func NewIDTokenVerifierWithKeys(keys map[string]keyfunc.GivenKey, clientID string) *IDTokenVerifier {
	_, logger := identity.ResolveLogger("identity.social.google", nil, nil)
	return newVerifier(keyfunc.NewGiven(keys), clientID, logger)
}

func newVerifier(jwks *keyfunc.JWKS, clientID string, logger identity.Logger) *IDTokenVerifier {
	return &IDTokenVerifier{
		jwks:     jwks,
		clientID: clientID,
		issuers:  googleIssuers,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock overrides the time source.
func (v *IDTokenVerifier) WithClock(now func() time.Time) *IDTokenVerifier {
	if now != nil {
		v.now = now
	}
	return v
}

// Close stops the background key refresh, if any.
func (v *IDTokenVerifier) Close() {
	v.jwks.EndBackground()
}

// IDTokenClaims is the subset of Google ID token claims the profile needs.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

func (c *IDTokenClaims) userInfo() *googleUserInfo {
	return &googleUserInfo{
		Sub:           c.Subject,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		Name:          c.Name,
		GivenName:     c.GivenName,
		FamilyName:    c.FamilyName,
		Picture:       c.Picture,
	}
}

// Verify checks signature, audience, issuer and expiry of raw.
func (v *IDTokenVerifier) Verify(raw string) (*IDTokenClaims, error) {
	claims := &IDTokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		v.logger.Warn("google id token rejected", "error", err)
		return nil, invalidIDToken(err, "verification failed")
	}

	if !slices.Contains(v.issuers, claims.Issuer) {
		v.logger.Warn("google id token rejected", "issuer", claims.Issuer)
		return nil, invalidIDToken(nil, "unexpected issuer")
	}
	if claims.Subject == "" {
		return nil, invalidIDToken(nil, "missing subject")
	}

	return claims, nil
}

func invalidIDToken(source error, reason string) error {
	clone := social.ErrIDTokenInvalid.Clone()
	if clone == nil {
		clone = social.ErrIDTokenInvalid
	}
	if source != nil {
		clone.Source = source
	}
	return clone.WithMetadata(map[string]any{
		"provider": "google",
		"reason":   reason,
	})
}
