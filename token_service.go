package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultTokenTTL is used when a TokenService is built with a zero TTL.
const DefaultTokenTTL = 24 * time.Hour

// TokenService issues and validates HS256 bearer tokens.
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	now        func() time.Time
}

var (
	_ TokenIssuer    = (*TokenService)(nil)
	_ TokenValidator = (*TokenService)(nil)
)

// NewTokenService creates a TokenService. An empty signing key is a configuration fault.
func NewTokenService(signingKey []byte, ttl time.Duration, issuer string, audience []string) (*TokenService, error) {
	if len(signingKey) == 0 {
		return nil, raise(ErrConfigurationFault, nil, map[string]any{
			"reason": "token signing key is empty",
		})
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	_, logger := ResolveLogger("identity.tokens", nil, nil)
	return &TokenService{
		signingKey: signingKey,
		ttl:        ttl,
		issuer:     issuer,
		audience:   jwt.ClaimStrings(audience),
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (ts *TokenService) WithLogger(logger Logger) *TokenService {
	_, ts.logger = ResolveLogger("identity.tokens", nil, logger)
	return ts
}

// WithClock overrides the time source, mostly for tests.
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// Issue mints a token whose subject is the principal's login and whose
// roles claim lists its authorities.
func (ts *TokenService) Issue(ctx context.Context, principal Principal) (string, error) {
	if principal.IsZero() {
		return "", errors.New("cannot issue a token for an anonymous principal", errors.CategoryInternal)
	}

	now := ts.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   principal.Login,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		Login: principal.Login,
		Roles: principal.Authorities,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Validate parses and validates a token string, returning its claims.
func (ts *TokenService) Validate(tokenString string) (*Claims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, raise(ErrTokenExpired, err, nil)
		}
		return nil, raise(ErrTokenMalformed, err, nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, raise(ErrTokenMalformed, nil, nil)
	}
	return claims, nil
}
