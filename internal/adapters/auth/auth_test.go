package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngds/geobridge/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	v := NewTokenVerifier(TokenConfig{Secret: "s3cret", Issuer: "ckan", Sysadmins: []string{"admin"}})

	tok, err := v.Issue("admin", time.Hour)
	require.NoError(t, err)

	p, err := v.Verify("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "admin", p.Name)
	assert.True(t, p.Sysadmin)

	tok, err = v.Issue("editor", 0)
	require.NoError(t, err)
	p, err = v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, domain.Principal{Name: "editor"}, p)
}

func TestVerifyRejects(t *testing.T) {
	v := NewTokenVerifier(TokenConfig{Secret: "s3cret", Issuer: "ckan"})
	other := NewTokenVerifier(TokenConfig{Secret: "different", Issuer: "ckan"})
	wrongIssuer := NewTokenVerifier(TokenConfig{Secret: "s3cret", Issuer: "elsewhere"})

	forged, err := other.Issue("admin", time.Hour)
	require.NoError(t, err)
	foreign, err := wrongIssuer.Issue("admin", time.Hour)
	require.NoError(t, err)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "admin",
		Issuer:    "ckan",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer: "ckan",
	}}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", forged},
		{"wrong issuer", foreign},
		{"expired", expired},
		{"no subject", noSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := v.Verify(tt.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrForbidden))
			assert.Equal(t, domain.Anonymous, p)
		})
	}
}

func TestVerifyEmptyTokenIsAnonymous(t *testing.T) {
	v := NewTokenVerifier(TokenConfig{})
	p, err := v.Verify("")
	require.NoError(t, err)
	assert.Equal(t, domain.Anonymous, p)

	_, err = v.Verify("something")
	assert.ErrorIs(t, err, domain.ErrForbidden, "tokens must be rejected when no secret is configured")

	_, err = v.Issue("admin", 0)
	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestAuthorizerCheckAccess(t *testing.T) {
	a := NewAuthorizer(map[string][]string{
		"datastore_spatialize":          {"editor"},
		"datastore_list_exposed_layers": {Wildcard},
	})
	ctx := context.Background()

	tests := []struct {
		name    string
		p       domain.Principal
		action  string
		wantErr bool
	}{
		{"sysadmin may do anything", domain.Principal{Name: "root", Sysadmin: true}, "geoserver_delete_workspace", false},
		{"granted user", domain.Principal{Name: "editor"}, "datastore_spatialize", false},
		{"user without grant", domain.Principal{Name: "viewer"}, "datastore_spatialize", true},
		{"granted user, other action", domain.Principal{Name: "editor"}, "datastore_expose_as_layer", true},
		{"wildcard grant", domain.Principal{Name: "viewer"}, "datastore_list_exposed_layers", false},
		{"anonymous never matches wildcard", domain.Anonymous, "datastore_list_exposed_layers", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.CheckAccess(ctx, tt.p, tt.action, "res-1")
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrForbidden)
				return
			}
			assert.NoError(t, err)
		})
	}
}
