package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeForbiddenRole       Code = "FORBIDDEN_ROLE"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeOrderNotFound       Code = "ORDER_NOT_FOUND"
	CodeStaleCallback       Code = "STALE_CALLBACK"
	CodeExternalProvider    Code = "EXTERNAL_PROVIDER_ERROR"
	CodeReviewNotAllowed    Code = "REVIEW_NOT_ALLOWED"
	CodeInvalidRating       Code = "INVALID_RATING"
	CodeReviewAlreadyExists Code = "REVIEW_ALREADY_EXISTS"
)

// Metadata describes how a code surfaces over HTTP. Expose lets the
// caller-supplied message replace PublicMessage in responses.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	Expose         bool
}

var metadataByCode = map[Code]Metadata{
	// generic
	CodeValidation:    {http.StatusBadRequest, false, "validation failed", true, true},
	CodeUnauthorized:  {http.StatusUnauthorized, false, "authentication required", false, true},
	CodeForbidden:     {http.StatusForbidden, false, "access denied", false, true},
	CodeNotFound:      {http.StatusNotFound, false, "resource not found", false, true},
	CodeConflict:      {http.StatusConflict, false, "conflict detected", false, true},
	CodeStateConflict: {http.StatusUnprocessableEntity, false, "state transition disallowed", true, true},
	CodeIdempotency:   {http.StatusConflict, false, "idempotency key reused", true, true},
	CodeRateLimit:     {http.StatusTooManyRequests, false, "rate limit exceeded", false, true},
	CodeInternal:      {http.StatusInternalServerError, true, "internal server error", false, false},
	CodeDependency:    {http.StatusServiceUnavailable, true, "dependency unavailable", true, false},

	// marketplace
	CodeForbiddenRole:       {http.StatusForbidden, false, "action not permitted for this role", true, true},
	CodeInvalidTransition:   {http.StatusConflict, false, "order status transition not allowed", true, true},
	CodeOrderNotFound:       {http.StatusNotFound, false, "order not found", false, true},
	CodeStaleCallback:       {http.StatusConflict, false, "payment callback does not match order state", true, true},
	CodeExternalProvider:    {http.StatusBadGateway, true, "payment provider request failed", true, false},
	CodeReviewNotAllowed:    {http.StatusForbidden, false, "order not found, not completed, or access denied", false, true},
	CodeInvalidRating:       {http.StatusBadRequest, false, "rating must be between 1 and 5", true, true},
	CodeReviewAlreadyExists: {http.StatusConflict, false, "review already exists", false, true},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether err carries the provided code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
