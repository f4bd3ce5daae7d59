package apperror

import (
	"errors"
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

// CodeOf returns the code of the outermost AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether any AppError in err's chain carries code.
func IsCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// Error codes.
const (
	CodeMalformedHeader           = "HDR_001"
	CodeMissingField              = "HDR_002"
	CodeInvalidPaymentRequired    = "PAY_001"
	CodePaymentVerificationFailed = "PAY_002"
	CodePaymentHandlingFailed     = "PAY_003"
	CodeFetchFailed               = "PAY_004"
	CodePaymentRejected           = "PAY_005"
	CodeFacilitatorError          = "FAC_001"
	CodeFacilitatorTimeout        = "FAC_002"
	CodeInsufficientSavingsFunds  = "WAL_001"
	CodeDailyLimitReached         = "WAL_002"
	CodeWalletNotConnected        = "WAL_003"
	CodeInsufficientFunds         = "WAL_004"
	CodeLedgerError               = "WAL_005"
	CodeValidation                = "VAL_001"
	CodeUnauthorized              = "AUTH_001"
	CodeRateLimitExceeded         = "RATE_001"
	CodeInternal                  = "SYS_001"
)

// ---- Protocol headers (HDR) ----

func ErrMalformedHeader(detail string) *AppError {
	return New(CodeMalformedHeader, "Malformed payment header: "+detail, http.StatusBadRequest)
}

func ErrMissingField(field string) *AppError {
	return New(CodeMissingField, "Missing required field: "+field, http.StatusBadRequest)
}

// ---- Payment negotiation (PAY) ----

func ErrInvalidPaymentRequired(err error) *AppError {
	return Wrap(CodeInvalidPaymentRequired, "Invalid payment requirement", http.StatusPaymentRequired, err)
}

// ErrPaymentVerificationFailed carries the status of the retried response.
func ErrPaymentVerificationFailed(status int) *AppError {
	return New(CodePaymentVerificationFailed, fmt.Sprintf("Payment verification failed with status %d", status), status)
}

func ErrPaymentHandlingFailed(err error) *AppError {
	return Wrap(CodePaymentHandlingFailed, "Payment handling failed", http.StatusInternalServerError, err)
}

func ErrFetchFailed(err error) *AppError {
	return Wrap(CodeFetchFailed, "Request failed", http.StatusBadGateway, err)
}

func ErrPaymentRejected(reason string) *AppError {
	return New(CodePaymentRejected, reason, http.StatusPaymentRequired)
}

// ---- Facilitator (FAC) ----

func ErrFacilitator(status int, err error) *AppError {
	msg := "Facilitator request failed"
	if status > 0 {
		msg = fmt.Sprintf("Facilitator responded with status %d", status)
	}
	return Wrap(CodeFacilitatorError, msg, http.StatusBadGateway, err)
}

func ErrFacilitatorTimeout(err error) *AppError {
	return Wrap(CodeFacilitatorTimeout, "Facilitator request timed out", http.StatusGatewayTimeout, err)
}

// ---- Wallets (WAL) ----

func ErrInsufficientSavingsFunds(balance, required string) *AppError {
	return New(CodeInsufficientSavingsFunds,
		fmt.Sprintf("Saving wallet balance %s is below refill amount %s", balance, required),
		http.StatusPaymentRequired)
}

func ErrDailyLimitReached() *AppError {
	return New(CodeDailyLimitReached, "Daily refill limit reached", http.StatusTooManyRequests)
}

func ErrWalletNotConnected() *AppError {
	return New(CodeWalletNotConnected, "Wallet not connected", http.StatusInternalServerError)
}

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrLedger(err error) *AppError {
	return Wrap(CodeLedgerError, "Ledger request failed", http.StatusBadGateway, err)
}

// ---- Generic ----

// Validation returns a VAL_001 validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func ErrUnauthorized() *AppError {
	return New(CodeUnauthorized, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
