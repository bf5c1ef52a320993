package client

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/noah-isme/course-ledger/internal/models"
	"github.com/noah-isme/course-ledger/pkg/config"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
)

// IdentityClient reads principals and profiles from the identity directory.
type IdentityClient struct {
	caller *caller
}

// NewIdentityClient constructs an identity client.
func NewIdentityClient(cfg config.DependencyConfig, opts Options) *IdentityClient {
	return &IdentityClient{caller: newCaller("identity", cfg.BaseURL, cfg.Timeout, opts)}
}

type userDTO struct {
	ID        string `json:"id"`
	MongoID   string `json:"_id"`
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (u userDTO) id() string {
	return firstNonEmpty(u.ID, u.MongoID, u.UserID)
}

// userEnvelope accepts both a bare user document and one wrapped in {"user": ...}.
type userEnvelope struct {
	userDTO
}

func (e *userEnvelope) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		User *userDTO `json:"user"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	if wrapped.User != nil {
		e.userDTO = *wrapped.User
		return nil
	}
	return json.Unmarshal(data, &e.userDTO)
}

// GetProfile resolves a student's display data. Missing users yield StudentNotFound.
func (c *IdentityClient) GetProfile(ctx context.Context, principal *models.Principal, userID string) (*models.Profile, error) {
	var env userEnvelope
	if err := c.caller.get(ctx, "get_profile", "/api/auth/users/"+escape(userID), principal, appErrors.ErrStudentNotFound, &env); err != nil {
		return nil, err
	}
	if env.Email == "" && env.FirstName == "" && env.LastName == "" {
		return nil, c.caller.unavailable(nil, "returned an empty profile")
	}
	return &models.Profile{
		ID:        firstNonEmpty(env.id(), userID),
		FirstName: env.FirstName,
		LastName:  env.LastName,
		Email:     env.Email,
	}, nil
}

// ResolvePrincipal verifies a bearer credential with the directory.
func (c *IdentityClient) ResolvePrincipal(ctx context.Context, credential string) (*models.Principal, error) {
	var env userEnvelope
	bearer := &models.Principal{Credential: credential}
	if err := c.caller.get(ctx, "verify", "/api/auth/verify", bearer, appErrors.ErrUnauthorized, &env); err != nil {
		if appErrors.HasCode(err, appErrors.ErrNotAuthorized.Code) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
		}
		return nil, err
	}
	role := models.Role(strings.ToLower(env.Role))
	if env.id() == "" || !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token does not carry a usable principal")
	}
	return &models.Principal{ID: env.id(), Email: env.Email, Role: role, Credential: credential}, nil
}
