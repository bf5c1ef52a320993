package client

import (
	"context"

	"github.com/noah-isme/course-ledger/internal/models"
	"github.com/noah-isme/course-ledger/pkg/config"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
)

// EnrollmentClient asks the enrollment ledger whether a student is enrolled.
type EnrollmentClient struct {
	caller *caller
	prefix string
}

// NewEnrollmentClient constructs a ledger client. apiPrefix is the ledger's route prefix.
func NewEnrollmentClient(cfg config.DependencyConfig, apiPrefix string, opts Options) *EnrollmentClient {
	if apiPrefix == "" {
		apiPrefix = "/api/v1"
	}
	return &EnrollmentClient{caller: newCaller("enrollment", cfg.BaseURL, cfg.Timeout, opts), prefix: apiPrefix}
}

type checkEnvelope struct {
	Data *models.EnrollmentCheck `json:"data"`
}

// CheckEnrollment returns the ledger's answer for (studentID, courseID).
func (c *EnrollmentClient) CheckEnrollment(ctx context.Context, principal *models.Principal, studentID, courseID string) (*models.EnrollmentCheck, error) {
	var env checkEnvelope
	path := c.prefix + "/enrollments/check/" + escape(studentID) + "/" + escape(courseID)
	if err := c.caller.get(ctx, "check_enrollment", path, principal, appErrors.ErrNotFound, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, c.caller.unavailable(nil, "returned a body without data")
	}
	return env.Data, nil
}
