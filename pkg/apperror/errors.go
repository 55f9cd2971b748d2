package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Ledger (LED) ----

// CodeDuplicateReference is matched by callers that recover from a lost
// insert race by returning the winner's entry.
const CodeDuplicateReference = "LED_002"

func ErrInsufficientFunds() *AppError {
	return New("LED_001", "Insufficient wallet balance", http.StatusPaymentRequired)
}

func ErrDuplicateReference() *AppError {
	return New(CodeDuplicateReference, "Reference has already been used", http.StatusConflict)
}

// ErrInvariantViolation signals a balance/ledger mismatch. Structurally
// unreachable with atomic pairing; seeing it means a bug or manual tampering.
func ErrInvariantViolation(err error) *AppError {
	return Wrap("LED_003", "Wallet balance and ledger disagree, flagged for manual review", http.StatusInternalServerError, err)
}

func ErrInvalidAmount() *AppError {
	return New("LED_004", "Invalid amount", http.StatusBadRequest)
}

func ErrAmountOutOfRange(category string) *AppError {
	return New("LED_005", fmt.Sprintf("Amount outside the allowed range for %s", category), http.StatusUnprocessableEntity)
}

func ErrNotFound(entity string) *AppError {
	return New("LED_006", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrTransactionFinalized() *AppError {
	return New("LED_007", "Transaction already in a terminal state", http.StatusConflict)
}

// ---- Refunds (RFD) ----

func ErrNotRefundable() *AppError {
	return New("RFD_001", "Original transaction not eligible for refund", http.StatusBadRequest)
}

func ErrRefundAmountExceedsOriginal() *AppError {
	return New("RFD_002", "Refund amount exceeds original transaction amount", http.StatusBadRequest)
}

func ErrAlreadyRefunded() *AppError {
	return New("RFD_003", "Original transaction has already been refunded", http.StatusConflict)
}

// ---- Provider (PRV) ----

func ErrUnsupportedCategory(category string) *AppError {
	return New("PRV_003", fmt.Sprintf("No provider configured for category %s", category), http.StatusBadRequest)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrInvalidPin() *AppError {
	return New("AUTH_002", "Incorrect wallet PIN", http.StatusForbidden)
}

func ErrInvalidSignature() *AppError {
	return New("AUTH_003", "Invalid webhook signature", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a LED_004-style validation error with a custom message.
func Validation(message string) *AppError {
	return New("LED_004", message, http.StatusBadRequest)
}
