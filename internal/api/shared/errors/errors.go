package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/feral-file/ff-ledger/internal/domain"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Client errors (4xx)
	ErrCodeBadRequest       ErrorCode = "bad_request"
	ErrCodeNotFound         ErrorCode = "not_found"
	ErrCodeValidationFailed ErrorCode = "validation_failed"
	ErrCodeUnauthorized     ErrorCode = "unauthorized"
	ErrCodeForbidden        ErrorCode = "forbidden"

	// Ledger rule violations
	ErrCodeInsufficientFee     ErrorCode = "insufficient_fee"
	ErrCodeInsufficientPayment ErrorCode = "insufficient_payment"
	ErrCodeCampaignEnded       ErrorCode = "campaign_ended"
	ErrCodeNotForSale          ErrorCode = "not_for_sale"
	ErrCodePriceMissing        ErrorCode = "price_missing"
	ErrCodeSelfPurchase        ErrorCode = "self_purchase"
	ErrCodeOverflow            ErrorCode = "overflow"
	ErrCodeInvalidAmount       ErrorCode = "invalid_amount"
	ErrCodeInvalidAccount      ErrorCode = "invalid_account"
	ErrCodeNotInitialized      ErrorCode = "not_initialized"
	ErrCodeAlreadyInitialized  ErrorCode = "already_initialized"

	// Server errors (5xx)
	ErrCodeInternalError ErrorCode = "internal_error"
)

// APIError represents a structured API error that carries error code and details
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	jsonErr, _ := json.Marshal(e)
	return string(jsonErr)
}

// ErrorResponse is the envelope every error response is wrapped in
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// Error constructors for common error types
func NewBadRequestError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeBadRequest,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

func NewNotFoundError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

func NewValidationError(details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeValidationFailed,
		Message: "Validation failed",
		Details: strings.Join(details, ", "),
	}
}

func NewUnauthorizedError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

func NewInternalError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeInternalError,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

// ledgerErrors maps ledger sentinel errors to their HTTP status, code and message
var ledgerErrors = []struct {
	err     error
	status  int
	code    ErrorCode
	message string
}{
	{domain.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, "Not found"},
	{domain.ErrUnauthorized, http.StatusForbidden, ErrCodeUnauthorized, "Caller is not permitted"},
	{domain.ErrInsufficientFee, http.StatusPaymentRequired, ErrCodeInsufficientFee, "Insufficient listing fee"},
	{domain.ErrInsufficientPayment, http.StatusPaymentRequired, ErrCodeInsufficientPayment, "Insufficient payment"},
	{domain.ErrCampaignEnded, http.StatusConflict, ErrCodeCampaignEnded, "Campaign has ended"},
	{domain.ErrNotForSale, http.StatusConflict, ErrCodeNotForSale, "Token is not for sale"},
	{domain.ErrPriceMissing, http.StatusConflict, ErrCodePriceMissing, "Token price is not set"},
	{domain.ErrSelfPurchase, http.StatusConflict, ErrCodeSelfPurchase, "Cannot buy own token"},
	{domain.ErrOverflow, http.StatusUnprocessableEntity, ErrCodeOverflow, "Amount overflow"},
	{domain.ErrInvalidAmount, http.StatusBadRequest, ErrCodeInvalidAmount, "Invalid amount"},
	{domain.ErrInvalidAccount, http.StatusBadRequest, ErrCodeInvalidAccount, "Invalid account"},
	{domain.ErrNotInitialized, http.StatusServiceUnavailable, ErrCodeNotInitialized, "Ledger is not initialized"},
	{domain.ErrAlreadyInitialized, http.StatusConflict, ErrCodeAlreadyInitialized, "Ledger is already initialized"},
}

// FromLedgerError converts a ledger error into an HTTP status and API error.
// ok is false when err is not a ledger rule violation.
func FromLedgerError(err error) (status int, apiErr *APIError, ok bool) {
	for _, le := range ledgerErrors {
		if errors.Is(err, le.err) {
			return le.status, &APIError{
				Code:    le.code,
				Message: le.message,
				Details: err.Error(),
			}, true
		}
	}
	return http.StatusInternalServerError, nil, false
}
