package dto

import (
	"errors"
	"net/http"

	"github.com/erp/platform/internal/domain/shared"
)

// Transport-level error codes. Domain codes pass through unchanged.
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeTokenExpired     = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid     = "TOKEN_INVALID"
	ErrCodeOrgRequired      = "ORGANIZATION_REQUIRED"
	ErrCodeRequestTooLarge  = "REQUEST_TOO_LARGE"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeSchedulerStopped = "SCHEDULER_DISABLED"
)

// ErrorCodeHTTPStatus maps specific error codes to HTTP status codes.
// Codes not listed fall back to the status of their error kind.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeBadRequest:       http.StatusBadRequest,
	ErrCodeValidation:       http.StatusBadRequest,
	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeTokenExpired:     http.StatusUnauthorized,
	ErrCodeTokenInvalid:     http.StatusUnauthorized,
	ErrCodeOrgRequired:      http.StatusBadRequest,
	ErrCodeRequestTooLarge:  http.StatusRequestEntityTooLarge,
	ErrCodeInternal:         http.StatusInternalServerError,
	ErrCodeSchedulerStopped: http.StatusServiceUnavailable,

	shared.CodeNotFound:             http.StatusNotFound,
	shared.CodeAccountNotFound:      http.StatusUnprocessableEntity,
	shared.CodeAlreadyExists:        http.StatusConflict,
	shared.CodeConcurrencyConflict:  http.StatusConflict,
	shared.CodeAlreadyReversed:      http.StatusConflict,
	shared.CodeTenantIsolation:      http.StatusForbidden,
	shared.CodeRuleRejected:         http.StatusUnprocessableEntity,
	shared.CodeOrganizationInactive: http.StatusForbidden,
	shared.CodeSelfApproval:         http.StatusForbidden,
	shared.CodeStorageError:         http.StatusServiceUnavailable,
}

// ErrorKindHTTPStatus maps domain error kinds to HTTP status codes
var ErrorKindHTTPStatus = map[shared.ErrorKind]int{
	shared.KindValidation:     http.StatusBadRequest,
	shared.KindGuardrail:      http.StatusUnprocessableEntity,
	shared.KindRuleEvaluation: http.StatusUnprocessableEntity,
	shared.KindConcurrency:    http.StatusConflict,
	shared.KindStorage:        http.StatusServiceUnavailable,
	shared.KindNotFound:       http.StatusNotFound,
	shared.KindState:          http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status code for an error code
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusBadRequest
}

// StatusFor resolves the HTTP status of a domain error: the code wins over the kind
func StatusFor(de *shared.DomainError) int {
	if status, ok := ErrorCodeHTTPStatus[de.Code]; ok {
		return status
	}
	if status, ok := ErrorKindHTTPStatus[de.Kind]; ok {
		return status
	}
	return http.StatusBadRequest
}

// ErrorFromDomain converts an error into a status and error body.
// Errors that are not domain errors are reported as internal without leaking their text.
func ErrorFromDomain(err error) (int, *ErrorInfo) {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, &ErrorInfo{
			Code:    ErrCodeInternal,
			Message: "An internal error occurred",
		}
	}
	return StatusFor(de), &ErrorInfo{
		Code:       de.Code,
		Message:    de.Message,
		Kind:       string(de.Kind),
		Retryable:  de.Retryable,
		Violations: de.Violations,
	}
}
