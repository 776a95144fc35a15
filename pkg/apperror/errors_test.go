package apperror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without field",
			err:      New(CodeInvalidInput, "unknown node"),
			expected: "[INVALID_INPUT] unknown node",
		},
		{
			name:     "with field",
			err:      NewWithField(CodeInvalidInput, "rate must be positive", "rate"),
			expected: "[INVALID_INPUT] rate must be positive (field: rate)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(cause, CodeAgentUnavailable, "agent unreachable")

	assert.Equal(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)
}

func TestError_StatusCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeNoPath, http.StatusConflict},
		{CodeInsufficientCapacity, http.StatusConflict},
		{CodeNotFound, http.StatusNotFound},
		{CodeUnknownLink, http.StatusNotFound},
		{CodeAgentUnavailable, http.StatusBadGateway},
		{CodeAgentRejected, http.StatusBadGateway},
		{CodeLedgerCorrupt, http.StatusInternalServerError},
		{CodeInvariantViolation, http.StatusInternalServerError},
		{CodeUnauthenticated, http.StatusUnauthorized},
		{CodeRateLimited, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "test")
			assert.Equal(t, tt.expected, err.StatusCode())
			assert.Equal(t, tt.expected, StatusCode(err))
		})
	}

	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("plain error")))
}

func TestIsAndCode(t *testing.T) {
	err := New(CodeInsufficientCapacity, "no room")
	assert.True(t, Is(err, CodeInsufficientCapacity))
	assert.False(t, Is(err, CodeNoPath))
	assert.Equal(t, CodeInsufficientCapacity, Code(err))
	assert.Equal(t, CodeInternal, Code(errors.New("plain")))
}

func TestSeverityHelpers(t *testing.T) {
	warn := NewWarning(CodeAgentRejected, "partial removal failure")
	assert.True(t, IsWarning(warn))
	assert.False(t, IsCritical(warn))

	crit := NewCritical(CodeInvariantViolation, "capacity went negative")
	assert.True(t, IsCritical(crit))
	assert.False(t, IsWarning(crit))
}

func TestValidationErrors(t *testing.T) {
	ve := NewValidationErrors()
	assert.True(t, ve.IsValid())

	ve.AddError(CodeInvalidInput, "src unknown")
	ve.AddErrorWithField(CodeInvalidInput, "rate must be positive", "rate")
	ve.Add(NewWarning(CodeAgentRejected, "non-fatal"))

	assert.True(t, ve.HasErrors())
	assert.False(t, ve.IsValid())
	assert.Len(t, ve.Errors, 2)
	assert.Len(t, ve.Warnings, 1)
	assert.Len(t, ve.ErrorMessages(), 2)
}
