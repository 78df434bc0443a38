// Package errors provides unified error handling for the transactional core.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, user-facing error code.
type ErrorCode string

const (
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidOperation  ErrorCode = "INVALID_OPERATION"
	ErrCodeNotFound          ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeDuplicateKey      ErrorCode = "DUPLICATE_KEY"
	ErrCodeTerminalStatus    ErrorCode = "TERMINAL_STATUS_ERROR"
	ErrCodeTerminalNotSignedIn    ErrorCode = "TERMINAL_NOT_SIGNED_IN"
	ErrCodeTerminalAlreadyOpened  ErrorCode = "TERMINAL_ALREADY_OPENED"
	ErrCodeTerminalAlreadyClosed  ErrorCode = "TERMINAL_ALREADY_CLOSED"
	ErrCodeTerminalNotClosed      ErrorCode = "TERMINAL_NOT_CLOSED"
	ErrCodeBalanceZero            ErrorCode = "BALANCE_ZERO"
	ErrCodeBalanceGreaterThanZero ErrorCode = "BALANCE_GREATER_THAN_ZERO"
	ErrCodeBalanceMinus           ErrorCode = "BALANCE_MINUS"
	ErrCodeDepositOver            ErrorCode = "DEPOSIT_OVER"
	ErrCodeAlreadyVoided          ErrorCode = "ALREADY_VOIDED"
	ErrCodeAlreadyRefunded        ErrorCode = "ALREADY_REFUNDED"
	ErrCodeExternalService        ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeSystem                 ErrorCode = "SYSTEM_ERROR"
	ErrCodeUnexpected             ErrorCode = "UNEXPECTED_ERROR"
)

// UserError is the localisable, user-facing portion of a ServiceError.
type UserError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ServiceError is a structured error carrying a code, HTTP-equivalent
// status, an optional user-facing message, and the underlying cause.
//
// One concrete type carries everything a handler needs to render the
// failure: a status code, a user-facing message, and an optional wrapped
// cause.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	UserError  UserError
	Details    map[string]any
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a diagnostic key/value pair (not surfaced to users).
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		UserError:  UserError{Code: code, Message: message},
	}
}

func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	se := New(code, message, httpStatus)
	se.Err = err
	return se
}

// WithUserMessage overrides the localisable, user-facing message.
func (e *ServiceError) WithUserMessage(message string) *ServiceError {
	e.UserError.Message = message
	return e
}

// Validation / input errors.

func Validation(message string) *ServiceError {
	return New(ErrCodeValidation, message, http.StatusUnprocessableEntity)
}

func InvalidOperation(message string) *ServiceError {
	return New(ErrCodeInvalidOperation, message, http.StatusBadRequest)
}

// Resource errors.

func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func DuplicateKey(resource, id string) *ServiceError {
	return New(ErrCodeDuplicateKey, fmt.Sprintf("%s already exists", resource), http.StatusBadRequest).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// Terminal precondition errors.

func TerminalStatusError(message string) *ServiceError {
	return New(ErrCodeTerminalStatus, message, http.StatusBadRequest)
}

func TerminalNotSignedIn() *ServiceError {
	return New(ErrCodeTerminalNotSignedIn, "terminal is not signed in", http.StatusUnauthorized)
}

func TerminalAlreadyOpened() *ServiceError {
	return New(ErrCodeTerminalAlreadyOpened, "terminal is already opened", http.StatusBadRequest)
}

func TerminalAlreadyClosed() *ServiceError {
	return New(ErrCodeTerminalAlreadyClosed, "terminal is already closed", http.StatusBadRequest)
}

func TerminalNotClosed() *ServiceError {
	return New(ErrCodeTerminalNotClosed, "terminal must be closed before a daily report can be generated", http.StatusBadRequest)
}

// Payment math errors.

func BalanceZero() *ServiceError {
	return New(ErrCodeBalanceZero, "balance is already zero", http.StatusBadRequest)
}

func BalanceGreaterThanZero() *ServiceError {
	return New(ErrCodeBalanceGreaterThanZero, "balance must be zero to bill", http.StatusNotAcceptable)
}

func BalanceMinus() *ServiceError {
	return New(ErrCodeBalanceMinus, "payment would overdraw the balance", http.StatusBadRequest)
}

func DepositOver() *ServiceError {
	return New(ErrCodeDepositOver, "deposit exceeds the balance and this payment method does not permit change", http.StatusNotAcceptable)
}

// Void/return precondition errors.

func AlreadyVoided() *ServiceError {
	return New(ErrCodeAlreadyVoided, "transaction has already been voided", http.StatusBadRequest)
}

func AlreadyRefunded() *ServiceError {
	return New(ErrCodeAlreadyRefunded, "transaction has already been refunded", http.StatusBadRequest)
}

// Infrastructure errors.

func ExternalService(service string, err error) *ServiceError {
	return Wrap(ErrCodeExternalService, fmt.Sprintf("%s call failed", service), http.StatusBadGateway, err).
		WithDetails("service", service)
}

func System(message string, err error) *ServiceError {
	return Wrap(ErrCodeSystem, message, http.StatusInternalServerError, err)
}

func Unexpected(err error) *ServiceError {
	return Wrap(ErrCodeUnexpected, "unexpected error", http.StatusInternalServerError, err)
}

// Helpers.

func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

func GetHTTPStatus(err error) int {
	if se := GetServiceError(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
