// Package apperror defines the error kinds returned by the ledger engine.
// Callers match kinds with errors.Is; *AppError carries the details.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kinds. Every *AppError unwraps to exactly one of these.
var (
	ErrNotFound                 = errors.New("not found")
	ErrInvalidInput             = errors.New("invalid input")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrInvalidState             = errors.New("invalid state")
	ErrAlreadyRestocked         = errors.New("already restocked")
	ErrQuantityExceedsRemaining = errors.New("quantity exceeds remaining")
	ErrOutsideBusinessDay       = errors.New("outside business day")
	ErrConfiguration            = errors.New("configuration error")
	ErrConcurrentModification   = errors.New("concurrent modification")
	ErrForbidden                = errors.New("forbidden")
)

// Machine-readable codes exposed to API clients.
const (
	CodeNotFound                 = "NOT_FOUND"
	CodeInvalidInput             = "INVALID_INPUT"
	CodeInsufficientStock        = "INSUFFICIENT_STOCK"
	CodeInvalidState             = "INVALID_STATE"
	CodeAlreadyRestocked         = "ALREADY_RESTOCKED"
	CodeQuantityExceedsRemaining = "QUANTITY_EXCEEDS_REMAINING"
	CodeOutsideBusinessDay       = "OUTSIDE_BUSINESS_DAY"
	CodeConfiguration            = "CONFIGURATION_ERROR"
	CodeConcurrentModification   = "CONCURRENT_MODIFICATION"
	CodeForbidden                = "FORBIDDEN"
	CodeInternal                 = "INTERNAL_ERROR"
)

var kindCodes = map[error]string{
	ErrNotFound:                 CodeNotFound,
	ErrInvalidInput:             CodeInvalidInput,
	ErrInsufficientStock:        CodeInsufficientStock,
	ErrInvalidState:             CodeInvalidState,
	ErrAlreadyRestocked:         CodeAlreadyRestocked,
	ErrQuantityExceedsRemaining: CodeQuantityExceedsRemaining,
	ErrOutsideBusinessDay:       CodeOutsideBusinessDay,
	ErrConfiguration:            CodeConfiguration,
	ErrConcurrentModification:   CodeConcurrentModification,
	ErrForbidden:                CodeForbidden,
}

// AppError is a classified engine error.
type AppError struct {
	Kind    error          `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	// Err is an optional underlying cause, never exposed to clients.
	Err error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// WithDetail adds a key-value pair to error details.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// New builds an error of the given kind.
func New(kind error, message string) *AppError {
	code, ok := kindCodes[kind]
	if !ok {
		code = CodeInternal
	}
	return &AppError{Kind: kind, Code: code, Message: message}
}

func Newf(kind error, format string, args ...any) *AppError {
	return New(kind, fmt.Sprintf(format, args...))
}

func NewNotFound(entity string, id string) *AppError {
	return New(ErrNotFound, entity+" not found").
		WithDetail("entity", entity).
		WithDetail("id", id)
}

func NewInvalidInput(message string) *AppError {
	return New(ErrInvalidInput, message)
}

// NewInsufficientStock reports a sale or claim that would overdraw stock.
func NewInsufficientStock(productID string, requested, available int) *AppError {
	return New(ErrInsufficientStock, "insufficient stock").
		WithDetail("product_id", productID).
		WithDetail("requested", requested).
		WithDetail("available", available)
}

// NewInvalidState reports an operation attempted from a status that does not allow it.
func NewInvalidState(entity, id, current, operation string) *AppError {
	return Newf(ErrInvalidState, "cannot %s %s in status %s", operation, entity, current).
		WithDetail("entity", entity).
		WithDetail("id", id).
		WithDetail("status", current)
}

func NewAlreadyRestocked(returnID string) *AppError {
	return New(ErrAlreadyRestocked, "return already restocked").WithDetail("id", returnID)
}

func NewQuantityExceedsRemaining(productID string, requested, remaining int) *AppError {
	return New(ErrQuantityExceedsRemaining, "quantity exceeds remaining").
		WithDetail("product_id", productID).
		WithDetail("requested", requested).
		WithDetail("remaining", remaining)
}

func NewOutsideBusinessDay(saleDay, currentDay string) *AppError {
	return New(ErrOutsideBusinessDay, "sale belongs to a closed business day").
		WithDetail("sale_business_day", saleDay).
		WithDetail("current_business_day", currentDay)
}

func NewConfiguration(message string) *AppError {
	return New(ErrConfiguration, message)
}

// NewConcurrentModification creates an optimistic locking error.
func NewConcurrentModification(entity string, id string) *AppError {
	return New(ErrConcurrentModification, "record was modified concurrently, retry").
		WithDetail("entity", entity).
		WithDetail("id", id)
}

// NewForbidden creates an error for an actor lacking the required role.
func NewForbidden(operation string) *AppError {
	return Newf(ErrForbidden, "not allowed to %s", operation).
		WithDetail("operation", operation)
}

// HTTPStatus maps an error to the suggested response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrAlreadyRestocked),
		errors.Is(err, ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrQuantityExceedsRemaining),
		errors.Is(err, ErrOutsideBusinessDay),
		errors.Is(err, ErrConfiguration):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the machine-readable code for err, CodeInternal when unclassified.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	for kind, code := range kindCodes {
		if errors.Is(err, kind) {
			return code
		}
	}
	return CodeInternal
}
