// Package auth verifies CKAN API tokens and decides which principals may
// run which actions.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ngds/geobridge/internal/domain"
)

// TokenConfig holds API token settings.
type TokenConfig struct {
	Secret    string   // HMAC secret shared with CKAN (api_token.jwt.encode.secret)
	Issuer    string   // Expected "iss" claim, empty to accept any
	Sysadmins []string // User names with every permission
}

// Claims are the claims carried by an API token.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenVerifier verifies HS256 API tokens.
type TokenVerifier struct {
	secret    []byte
	issuer    string
	sysadmins map[string]bool
}

// NewTokenVerifier creates a verifier. An empty secret disables tokens:
// every request is anonymous.
func NewTokenVerifier(cfg TokenConfig) *TokenVerifier {
	admins := make(map[string]bool, len(cfg.Sysadmins))
	for _, name := range cfg.Sysadmins {
		admins[name] = true
	}
	return &TokenVerifier{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		sysadmins: admins,
	}
}

// Enabled reports whether a secret is configured.
func (v *TokenVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify parses a token and returns its principal. The token may carry a
// "Bearer " prefix, as in an Authorization header.
func (v *TokenVerifier) Verify(token string) (domain.Principal, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return domain.Anonymous, nil
	}
	if !v.Enabled() {
		return domain.Anonymous, fmt.Errorf("API tokens are not enabled: %w", domain.ErrForbidden)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Anonymous, fmt.Errorf("API token expired: %w", domain.ErrForbidden)
		}
		return domain.Anonymous, fmt.Errorf("invalid API token: %w", domain.ErrForbidden)
	}
	if claims.Subject == "" {
		return domain.Anonymous, fmt.Errorf("API token has no subject: %w", domain.ErrForbidden)
	}

	return domain.Principal{Name: claims.Subject, Sysadmin: v.sysadmins[claims.Subject]}, nil
}

// Issue signs a token for user. A zero ttl issues a token that does not expire.
func (v *TokenVerifier) Issue(user string, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", &domain.ConfigError{Field: "auth.secret", Message: "required to issue tokens"}
	}
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  user,
		Issuer:   v.issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
