package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound           = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal           = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrConflict           = NewError("CONFLICT", "resource conflict", http.StatusConflict)
	ErrUnauthorized       = NewError("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized)
	ErrForbidden          = NewError("FORBIDDEN", "forbidden", http.StatusForbidden)
	ErrTimeout            = NewError("TIMEOUT", "operation timed out", http.StatusRequestTimeout)
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)

	// ErrMalformedRule marks a rule-authoring bug: an unknown operator or a
	// broken condition tree. At write time it surfaces as a 400; at
	// evaluation time the rule is skipped and reported out of band.
	ErrMalformedRule = NewError("MALFORMED_RULE", "rule condition is malformed", http.StatusBadRequest)

	// ErrUnknownRule marks a write that references or collides with a rule
	// id in a way the catalog cannot reconcile.
	ErrUnknownRule = NewError("UNKNOWN_RULE", "rule id is unknown or conflicts with the catalog", http.StatusUnprocessableEntity)
)

// Codes that will not succeed on retry no matter how often they run.
var fatalCodes = map[string]bool{
	ErrValidation.Code:    true,
	ErrNotFound.Code:      true,
	ErrMalformedRule.Code: true,
	ErrUnknownRule.Code:   true,
}

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
		msg = detailMsg
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable defers first to an explicit AsRetryable/AsFatal override,
// then to the cause's own marker, then to the code classification.
func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}

	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}

	return !fatalCodes[e.Code]
}

func (e *Error) IsFatal() bool {
	if e.retryable != nil {
		return !*e.retryable
	}

	if e.Cause != nil {
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return fatalErr.IsFatal()
		}
	}

	return fatalCodes[e.Code]
}

// The With and As builders copy the error, including its Details map, so
// the shared sentinels above are never mutated and derived errors do not
// alias each other.

func copyDetails(details map[string]interface{}) map[string]interface{} {
	copied := make(map[string]interface{}, len(details)+1)
	for k, v := range details {
		copied[k] = v
	}
	return copied
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	err.Details = copyDetails(e.Details)
	err.Details[key] = value
	return &err
}

func (e *Error) WithDetails(details map[string]interface{}) *Error {
	err := *e
	err.Details = copyDetails(details)
	return &err
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func hasCode(err error, code string) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool      { return hasCode(err, ErrNotFound.Code) }
func IsValidation(err error) bool    { return hasCode(err, ErrValidation.Code) }
func IsConflict(err error) bool      { return hasCode(err, ErrConflict.Code) }
func IsMalformedRule(err error) bool { return hasCode(err, ErrMalformedRule.Code) }
func IsUnknownRule(err error) bool   { return hasCode(err, ErrUnknownRule.Code) }

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}
	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}
	return response
}
