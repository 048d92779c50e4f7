package dto

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeConflict, http.StatusConflict},
		{ErrCodeInvalidState, http.StatusUnprocessableEntity},
		{ErrCodeUpstream, http.StatusBadGateway},
		{ErrCodeTimeout, http.StatusGatewayTimeout},
		{ErrCodeUnavailable, http.StatusServiceUnavailable},
		{"ERR_SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, GetHTTPStatus(tt.code))
		})
	}
}

func TestResponses(t *testing.T) {
	ok := NewSuccessResponse(map[string]int{"created": 1})
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Error)

	failed := NewErrorResponseWithRequestID(ErrCodeConflict, "busy", "req-1")
	assert.False(t, failed.Success)
	assert.Equal(t, "req-1", failed.Error.RequestID)
	assert.Equal(t, ErrCodeConflict, failed.Error.Code)

	invalid := NewValidationErrorResponse("Request validation failed", "req-2", []ValidationDetail{{Field: "arg", Message: "Invalid value"}})
	assert.Equal(t, ErrCodeValidation, invalid.Error.Code)
	assert.Len(t, invalid.Error.Details, 1)
}
