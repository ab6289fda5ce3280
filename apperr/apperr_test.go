package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindStatusAndSeverity(t *testing.T) {
	cases := []struct {
		kind     Kind
		status   int
		severity Severity
	}{
		{KindValidation, http.StatusBadRequest, SeverityLow},
		{KindAuthentication, http.StatusUnauthorized, SeverityHigh},
		{KindAuthorization, http.StatusForbidden, SeverityHigh},
		{KindNotFound, http.StatusNotFound, SeverityLow},
		{KindConflict, http.StatusConflict, SeverityMedium},
		{KindRateLimit, http.StatusTooManyRequests, SeverityMedium},
		{KindDatabase, http.StatusInternalServerError, SeverityHigh},
		{KindInternal, http.StatusInternalServerError, SeverityCritical},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.status, tc.kind.Status())
			assert.Equal(t, tc.severity, tc.kind.Severity())
		})
	}
}

func TestFromKeepsTypedErrorThroughWrapping(t *testing.T) {
	base := Conflict("EMAIL_EXISTS", "email already registered")
	wrapped := fmt.Errorf("register: %w", base)

	got := From(wrapped)
	require.NotNil(t, got)
	assert.Same(t, base, got)
	assert.True(t, IsKind(wrapped, KindConflict))
}

func TestFromUnknownErrorIsInternal(t *testing.T) {
	cause := errors.New("boom")
	got := From(cause)

	assert.Equal(t, KindInternal, got.Kind)
	assert.ErrorIs(t, got, cause)
	assert.NotEmpty(t, got.Stack())
	assert.Nil(t, From(nil))
}

func TestValidationCarriesNoStack(t *testing.T) {
	e := Validation("bad input").WithDetails(map[string]string{"email": "required"})
	assert.Empty(t, e.Stack())
	assert.Equal(t, map[string]string{"email": "required"}, e.Details)
	assert.Equal(t, "VALIDATION_ERROR: bad input", e.Error())
}
