package shared

import (
	"errors"
	"fmt"
)

// Error codes shared by every bounded context.
// Payroll workflows classify failures into validation, guard and remote errors;
// everything else is a resource or concurrency problem.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeValidation          = "VALIDATION_ERROR"
	CodeGuardViolation      = "GUARD_VIOLATION"
	CodeRemote              = "REMOTE_ERROR"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeDuplicateRequest    = "DUPLICATE_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInvalidState        = "INVALID_STATE"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Rule names the lifecycle or invariant rule for guard violations.
	Rule string `json:"rule,omitempty"`
	// Details carries offending identifiers or fields, e.g. ineligible record ids.
	Details []string `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s: %s", e.Rule, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches domain errors by code so errors.Is(err, ErrNotFound) works on copies.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Rule == "" || e.Rule == t.Rule)
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates an error for malformed input caught before any remote call.
func NewValidationError(message string, details ...string) *DomainError {
	return &DomainError{Code: CodeValidation, Message: message, Details: details}
}

// NewGuardViolation creates an error for a lifecycle or invariant rule that blocks an action.
func NewGuardViolation(rule, message string) *DomainError {
	return &DomainError{Code: CodeGuardViolation, Rule: rule, Message: message}
}

// NewRemoteError wraps a collaborator failure, keeping the collaborator's message.
func NewRemoteError(collaborator string, cause error) *DomainError {
	msg := collaborator + " request failed"
	if cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, cause.Error())
	}
	return &DomainError{Code: CodeRemote, Message: msg, cause: cause}
}

// WithDetails returns a copy of the error carrying the given details.
func (e *DomainError) WithDetails(details ...string) *DomainError {
	cp := *e
	cp.Details = append([]string(nil), details...)
	return &cp
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrDuplicateRequest    = NewDomainError(CodeDuplicateRequest, "Request with this idempotency key was already processed")
	ErrUnauthorized        = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
	ErrForbidden           = NewDomainError(CodeForbidden, "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
)

// HasCode reports whether err is a DomainError with the given code.
func HasCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
