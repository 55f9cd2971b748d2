package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	e := New("LED_001", "Insufficient wallet balance", http.StatusPaymentRequired)
	assert.Equal(t, "[LED_001] Insufficient wallet balance", e.Error())
}

func TestAppError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	e := Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, cause)
	assert.Contains(t, e.Error(), "SYS_001")
	assert.Contains(t, e.Error(), "connection refused")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	e := InternalError(cause)
	assert.Equal(t, cause, errors.Unwrap(e))
	assert.ErrorIs(t, e, cause)
}

func TestAppError_ErrorsAs(t *testing.T) {
	var target *AppError
	err := fmt.Errorf("wrapped: %w", ErrDuplicateReference())
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "LED_002", target.Code)
	assert.Equal(t, http.StatusConflict, target.HTTPStatus)
}

func TestLedgerErrorCodes(t *testing.T) {
	tests := []struct {
		err    *AppError
		code   string
		status int
	}{
		{ErrInsufficientFunds(), "LED_001", http.StatusPaymentRequired},
		{ErrDuplicateReference(), "LED_002", http.StatusConflict},
		{ErrInvariantViolation(errors.New("drift")), "LED_003", http.StatusInternalServerError},
		{ErrInvalidAmount(), "LED_004", http.StatusBadRequest},
		{ErrAmountOutOfRange("airtime"), "LED_005", http.StatusUnprocessableEntity},
		{ErrNotFound("wallet"), "LED_006", http.StatusNotFound},
		{ErrTransactionFinalized(), "LED_007", http.StatusConflict},
		{ErrNotRefundable(), "RFD_001", http.StatusBadRequest},
		{ErrRefundAmountExceedsOriginal(), "RFD_002", http.StatusBadRequest},
		{ErrAlreadyRefunded(), "RFD_003", http.StatusConflict},
		{ErrUnsupportedCategory("crypto"), "PRV_003", http.StatusBadRequest},
		{ErrInvalidToken(), "AUTH_001", http.StatusUnauthorized},
		{ErrInvalidPin(), "AUTH_002", http.StatusForbidden},
		{ErrRateLimitExceeded(), "RATE_001", http.StatusTooManyRequests},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Equal(t, tc.status, tc.err.HTTPStatus)
		})
	}
}
