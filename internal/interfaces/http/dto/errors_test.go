package dto

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		code string
		want int
	}{
		{"not found maps to 404", ErrCodeNotFound, http.StatusNotFound},
		{"already exists maps to 409", ErrCodeAlreadyExists, http.StatusConflict},
		{"invalid state maps to 409", ErrCodeInvalidState, http.StatusConflict},
		{"duplicate delivery maps to 409", ErrCodeDuplicateDelivery, http.StatusConflict},
		{"validation maps to 400", ErrCodeValidation, http.StatusBadRequest},
		{"circuit open maps to 503", ErrCodeCircuitOpen, http.StatusServiceUnavailable},
		{"delivery failed maps to 502", ErrCodeDeliveryFailed, http.StatusBadGateway},
		{"rate limited maps to 429", ErrCodeRateLimited, http.StatusTooManyRequests},
		{"unknown code falls back to 500", "ERR_SOMETHING_NEW", http.StatusInternalServerError},
		{"empty code falls back to 500", "", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	t.Run("maps domain codes to API codes", func(t *testing.T) {
		assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode("NOT_FOUND"))
		assert.Equal(t, ErrCodeInvalidState, NormalizeErrorCode("INVALID_STATE"))
		assert.Equal(t, ErrCodeDuplicateDelivery, NormalizeErrorCode("DUPLICATE_DELIVERY"))
		assert.Equal(t, ErrCodeConcurrencyConflict, NormalizeErrorCode("CONCURRENCY_CONFLICT"))
	})

	t.Run("passes API codes through unchanged", func(t *testing.T) {
		assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode(ErrCodeNotFound))
		assert.Equal(t, ErrCodeCircuitOpen, NormalizeErrorCode(ErrCodeCircuitOpen))
	})

	t.Run("leaves unknown codes untouched", func(t *testing.T) {
		assert.Equal(t, "CUSTOM_CODE", NormalizeErrorCode("CUSTOM_CODE"))
	})
}

func TestNewSuccessResponseWithMeta(t *testing.T) {
	resp := NewSuccessResponseWithMeta([]string{"a", "b"}, 45, 2, 20)

	assert.True(t, resp.Success)
	assert.Equal(t, int64(45), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.Page)
	assert.Equal(t, 20, resp.Meta.PageSize)
	assert.Equal(t, 3, resp.Meta.TotalPages)
}
