package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-ledger/internal/models"
	"github.com/noah-isme/course-ledger/pkg/config"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
)

func signToken(t *testing.T, secret string, claims models.PrincipalClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTResolverAcceptsLegacyUserIDClaim(t *testing.T) {
	resolver := NewJWTResolver(config.JWTConfig{Secret: "s3cret"})
	token := signToken(t, "s3cret", models.PrincipalClaims{
		UserID: "fac-1",
		Email:  "prof@example.com",
		Role:   "FACULTY",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	principal, err := resolver.ResolvePrincipal(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "fac-1", principal.ID)
	assert.Equal(t, models.RoleFaculty, principal.Role)
	assert.Equal(t, token, principal.Credential)
}

func TestJWTResolverRejectsBadTokens(t *testing.T) {
	resolver := NewJWTResolver(config.JWTConfig{Secret: "s3cret", Issuer: "identity"})

	wrongSecret := signToken(t, "other", models.PrincipalClaims{ID: "stu-1", Role: "student", RegisteredClaims: jwt.RegisteredClaims{Issuer: "identity"}})
	_, err := resolver.ResolvePrincipal(context.Background(), wrongSecret)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	wrongIssuer := signToken(t, "s3cret", models.PrincipalClaims{ID: "stu-1", Role: "student", RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere"}})
	_, err = resolver.ResolvePrincipal(context.Background(), wrongIssuer)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	unknownRole := signToken(t, "s3cret", models.PrincipalClaims{ID: "stu-1", Role: "janitor", RegisteredClaims: jwt.RegisteredClaims{Issuer: "identity"}})
	_, err = resolver.ResolvePrincipal(context.Background(), unknownRole)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	expired := signToken(t, "s3cret", models.PrincipalClaims{ID: "stu-1", Role: "student", RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "identity",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	_, err = resolver.ResolvePrincipal(context.Background(), expired)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

type stubResolver struct{}

func (stubResolver) ResolvePrincipal(context.Context, string) (*models.Principal, error) {
	return &models.Principal{ID: "remote"}, nil
}

func TestNewPrincipalResolverSelectsMode(t *testing.T) {
	remote := stubResolver{}
	_, isJWT := NewPrincipalResolver(config.IdentityConfig{Mode: config.IdentityModeJWT}, config.JWTConfig{}, remote).(*JWTResolver)
	assert.True(t, isJWT)

	resolved := NewPrincipalResolver(config.IdentityConfig{Mode: config.IdentityModeRemote}, config.JWTConfig{}, remote)
	assert.Equal(t, remote, resolved)
}
