// Package errors provides custom error types for the budget ledger API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import (
	stderrors "errors"
	"net/http"
)

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// IsNotFound reports whether err is an AppError of the 404 class.
func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// IsConflict reports whether err is an AppError of the 409 class.
func IsConflict(err error) bool { return hasStatus(err, http.StatusConflict) }

func hasStatus(err error, status int) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.StatusCode == status
}

// Authentication & authorization errors.
var (
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrInvalidMonth   = &AppError{Code: "INVALID_MONTH", Message: "Month must be between 1 and 12", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
	ErrUpstream       = &AppError{Code: "UPSTREAM_UNAVAILABLE", Message: "An upstream provider is unavailable", StatusCode: http.StatusBadGateway}
)

// Reference data errors.
var (
	ErrExpenseNotFound          = &AppError{Code: "EXPENSE_NOT_FOUND", Message: "Expense not found", StatusCode: http.StatusNotFound}
	ErrFinancialCompanyNotFound = &AppError{Code: "FINANCIAL_COMPANY_NOT_FOUND", Message: "Financial company not found", StatusCode: http.StatusNotFound}
)

// Budget errors.
var (
	ErrBudgetNotFound         = &AppError{Code: "BUDGET_NOT_FOUND", Message: "Budget not found", StatusCode: http.StatusNotFound}
	ErrDuplicateBudgetVersion = &AppError{Code: "DUPLICATE_BUDGET_VERSION", Message: "A budget with this year and version already exists", StatusCode: http.StatusConflict}
	ErrActiveBudgetDelete     = &AppError{Code: "ACTIVE_BUDGET_DELETE", Message: "The active budget cannot be deleted", StatusCode: http.StatusConflict}
	ErrBudgetAlreadyInReview  = &AppError{Code: "BUDGET_ALREADY_IN_REVIEW", Message: "Budget is already in review", StatusCode: http.StatusConflict}
	ErrBudgetHasTransactions  = &AppError{Code: "BUDGET_HAS_TRANSACTIONS", Message: "Budget lines are referenced by transactions", StatusCode: http.StatusConflict}
)

// Budget line errors.
var (
	ErrBudgetLineNotFound  = &AppError{Code: "BUDGET_LINE_NOT_FOUND", Message: "Budget line not found", StatusCode: http.StatusNotFound}
	ErrDuplicateBudgetLine = &AppError{Code: "DUPLICATE_BUDGET_LINE", Message: "A budget line for this expense and company already exists", StatusCode: http.StatusConflict}
	ErrBudgetLineInUse     = &AppError{Code: "BUDGET_LINE_IN_USE", Message: "Budget line is referenced by transactions", StatusCode: http.StatusConflict}
)

// Conversion rate errors.
var (
	ErrConversionRateNotFound = &AppError{Code: "CONVERSION_RATE_NOT_FOUND", Message: "Conversion rate not found", StatusCode: http.StatusNotFound}
	ErrInvalidRate            = &AppError{Code: "INVALID_RATE", Message: "Conversion rate must be greater than zero", StatusCode: http.StatusBadRequest}
)

// Transaction errors.
var (
	ErrTransactionNotFound        = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
	ErrInvalidTransactionType     = &AppError{Code: "INVALID_TRANSACTION_TYPE", Message: "Unsupported transaction type", StatusCode: http.StatusBadRequest}
	ErrDuplicateReferenceDocument = &AppError{Code: "DUPLICATE_REFERENCE_DOCUMENT", Message: "Reference document already recorded for this budget line", StatusCode: http.StatusConflict}
	ErrInvalidCompensation        = &AppError{Code: "INVALID_COMPENSATION", Message: "Only a REAL transaction may compensate a COMMITTED transaction", StatusCode: http.StatusBadRequest}
	ErrAlreadyCompensated         = &AppError{Code: "ALREADY_COMPENSATED", Message: "Transaction is already compensated", StatusCode: http.StatusConflict}
	ErrTransactionCompensated     = &AppError{Code: "TRANSACTION_COMPENSATED", Message: "A compensated transaction cannot be deleted", StatusCode: http.StatusConflict}
	ErrTransactionNotEditable     = &AppError{Code: "TRANSACTION_NOT_EDITABLE", Message: "Transaction type and compensation cannot be edited", StatusCode: http.StatusBadRequest}
	ErrCompensationTargetNotFound = &AppError{Code: "COMPENSATED_TRANSACTION_NOT_FOUND", Message: "Compensated transaction not found", StatusCode: http.StatusNotFound}
)

// Change request errors.
var (
	ErrChangeRequestNotFound = &AppError{Code: "CHANGE_REQUEST_NOT_FOUND", Message: "Change request not found", StatusCode: http.StatusNotFound}
	ErrChangeRequestResolved = &AppError{Code: "CHANGE_REQUEST_RESOLVED", Message: "Change request is already resolved", StatusCode: http.StatusConflict}
)

// Saving errors.
var (
	ErrSavingNotFound       = &AppError{Code: "SAVING_NOT_FOUND", Message: "Saving not found", StatusCode: http.StatusNotFound}
	ErrSavingResolved       = &AppError{Code: "SAVING_RESOLVED", Message: "Saving is already approved", StatusCode: http.StatusConflict}
	ErrInvalidDistribution  = &AppError{Code: "INVALID_DISTRIBUTION", Message: "Invalid savings distribution", StatusCode: http.StatusBadRequest}
	ErrNoSavingsToApply     = &AppError{Code: "NO_SAVINGS_TO_APPLY", Message: "No approved savings are pending application", StatusCode: http.StatusConflict}
	ErrAmbiguousSavingsLine = &AppError{Code: "AMBIGUOUS_SAVINGS_LINE", Message: "Saving must name a financial company when its expense has several lines", StatusCode: http.StatusBadRequest}
)
