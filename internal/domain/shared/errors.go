package shared

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a DomainError so callers can tell "fix your data" from "try again"
type ErrorKind string

const (
	KindValidation     ErrorKind = "VALIDATION"
	KindGuardrail      ErrorKind = "GUARDRAIL"
	KindRuleEvaluation ErrorKind = "RULE_EVALUATION"
	KindConcurrency    ErrorKind = "CONCURRENCY"
	KindStorage        ErrorKind = "STORAGE"
	KindNotFound       ErrorKind = "NOT_FOUND"
	KindState          ErrorKind = "STATE"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Kind       ErrorKind   `json:"kind"`
	Violations []Violation `json:"violations,omitempty"`
	Retryable  bool        `json:"retryable"`

	cause error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches sentinel domain errors by code
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Kind:    KindValidation,
	}
}

// NewValidationError creates a caller-correctable error. It is never retried automatically.
func NewValidationError(code, message string, violations ...Violation) *DomainError {
	return &DomainError{
		Code:       code,
		Message:    message,
		Kind:       KindValidation,
		Violations: violations,
	}
}

// NewGuardrailViolation creates an invariant-breach error carrying every violation of the request
func NewGuardrailViolation(message string, violations []Violation) *DomainError {
	return &DomainError{
		Code:       CodeGuardrailViolation,
		Message:    message,
		Kind:       KindGuardrail,
		Violations: violations,
	}
}

// NewRuleEvaluationError reports malformed or missing rule data
func NewRuleEvaluationError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Kind:    KindRuleEvaluation,
	}
}

// NewStateError reports an operation that is not allowed in the current lifecycle state
func NewStateError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Kind:    KindState,
	}
}

// NewNotFoundError reports a missing row
func NewNotFoundError(resource string) *DomainError {
	return &DomainError{
		Code:    CodeNotFound,
		Message: resource + " not found",
		Kind:    KindNotFound,
	}
}

// NewStorageError wraps an underlying persistence failure as a retryable error
func NewStorageError(op string, err error) *DomainError {
	return &DomainError{
		Code:      CodeStorageError,
		Message:   fmt.Sprintf("storage failure during %s", op),
		Kind:      KindStorage,
		Retryable: true,
		cause:     err,
	}
}

// WithCause attaches a cause to a copy of the error
func (e *DomainError) WithCause(err error) *DomainError {
	cp := *e
	cp.cause = err
	return &cp
}

// Error codes
const (
	CodeNotFound             = "NOT_FOUND"
	CodeAlreadyExists        = "ALREADY_EXISTS"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeConcurrencyConflict  = "CONCURRENCY_CONFLICT"
	CodeInvalidState         = "INVALID_STATE"
	CodeGuardrailViolation   = "GUARDRAIL_VIOLATION"
	CodeActorRequired        = "ACTOR_REQUIRED"
	CodeInvalidFormat        = "INVALID_FORMAT"
	CodeUnregisteredNS       = "UNREGISTERED_NAMESPACE"
	CodeSmartCodeRequired    = "SMART_CODE_REQUIRED"
	CodeFieldType            = "FIELD_TYPE_MISMATCH"
	CodeTenantIsolation      = "TENANT_ISOLATION"
	CodeImbalance            = "IMBALANCE"
	CodeLineSequence         = "LINE_SEQUENCE"
	CodeRuleMalformed        = "RULE_MALFORMED"
	CodeRuleRejected         = "RULE_REJECTED"
	CodeStorageError         = "STORAGE_ERROR"
	CodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	CodeAlreadyReversed      = "ALREADY_REVERSED"
	CodeOrganizationInactive = "ORGANIZATION_INACTIVE"
	CodeApprovalRequired     = "APPROVAL_REQUIRED"
	CodeSelfApproval         = "SELF_APPROVAL"
)

// Common domain errors
var (
	ErrNotFound            = &DomainError{Code: CodeNotFound, Message: "Resource not found", Kind: KindNotFound}
	ErrAlreadyExists       = &DomainError{Code: CodeAlreadyExists, Message: "Resource already exists", Kind: KindConcurrency}
	ErrInvalidInput        = NewValidationError(CodeInvalidInput, "Invalid input provided")
	ErrConcurrencyConflict = &DomainError{Code: CodeConcurrencyConflict, Message: "Resource was modified by another process", Kind: KindConcurrency}
	ErrInvalidState        = NewStateError(CodeInvalidState, "Operation not allowed in current state")
	ErrActorRequired       = NewValidationError(CodeActorRequired, "A non-anonymous actor is required for mutating operations")
)

// KindOf returns the kind of a domain error, or "" for foreign errors
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsRetryable reports whether err is an infrastructure failure worth retrying
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// ViolationSummary renders violations as a single line for logs
func ViolationSummary(violations []Violation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, "; ")
}
