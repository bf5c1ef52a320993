package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsCodeForErrorsIs(t *testing.T) {
	err := Clone(ErrAlreadyEnrolled, "already enrolled in C101")
	wrapped := fmt.Errorf("enroll: %w", err)

	assert.True(t, stderrors.Is(wrapped, ErrAlreadyEnrolled))
	assert.False(t, stderrors.Is(wrapped, ErrNotAuthorized))
	assert.Equal(t, "already enrolled in C101", err.Message)
	assert.Equal(t, "already enrolled in this course", ErrAlreadyEnrolled.Message)
}

func TestFromErrorNormalisesUnknownErrors(t *testing.T) {
	appErr := FromError(stderrors.New("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)

	typed := FromError(fmt.Errorf("ctx: %w", ErrDependencyUnavailable))
	assert.Equal(t, ErrDependencyUnavailable.Code, typed.Code)
	assert.Nil(t, FromError(nil))
}

func TestDependencyUnavailableIsDistinctFromNotAuthorized(t *testing.T) {
	err := CloneWrap(ErrDependencyUnavailable, stderrors.New("dial tcp: refused"), "catalog unavailable")
	assert.True(t, HasCode(err, ErrDependencyUnavailable.Code))
	assert.False(t, HasCode(err, ErrNotAuthorized.Code))
	assert.NotEqual(t, ErrNotAuthorized.Status, err.Status)
	assert.Contains(t, err.Error(), "dial tcp")
}
