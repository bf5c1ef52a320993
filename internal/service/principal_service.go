package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/course-ledger/internal/models"
	"github.com/noah-isme/course-ledger/pkg/config"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
)

// PrincipalResolver turns a bearer credential into a principal.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, credential string) (*models.Principal, error)
}

// JWTResolver verifies identity directory tokens locally with the shared secret.
type JWTResolver struct {
	secret []byte
	issuer string
}

// NewJWTResolver constructs a resolver for HS256 tokens.
func NewJWTResolver(cfg config.JWTConfig) *JWTResolver {
	return &JWTResolver{secret: []byte(cfg.Secret), issuer: cfg.Issuer}
}

// ResolvePrincipal validates the token signature and claims.
func (r *JWTResolver) ResolvePrincipal(_ context.Context, credential string) (*models.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	token, err := jwt.ParseWithClaims(credential, &models.PrincipalClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.PrincipalClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	id := claims.ID
	if id == "" {
		id = claims.UserID
	}
	if id == "" {
		id = claims.Subject
	}
	role := models.Role(strings.ToLower(claims.Role))
	if id == "" || !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token does not carry a usable principal")
	}

	return &models.Principal{ID: id, Email: claims.Email, Role: role, Credential: credential}, nil
}

// NewPrincipalResolver picks local verification or a call to the directory.
func NewPrincipalResolver(cfg config.IdentityConfig, jwtCfg config.JWTConfig, remote PrincipalResolver) PrincipalResolver {
	if cfg.Mode == config.IdentityModeRemote && remote != nil {
		return remote
	}
	return NewJWTResolver(jwtCfg)
}
