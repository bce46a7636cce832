package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes by how callers should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindSecurity
	KindUpstream
)

// Stable error codes surfaced to API clients
const (
	CodeShowtimeNotFound      = "SHOWTIME_NOT_FOUND"
	CodeSeatNotFound          = "SEAT_NOT_FOUND"
	CodeSeatWrongRoom         = "SEAT_WRONG_ROOM"
	CodeSeatUnavailable       = "SEAT_UNAVAILABLE"
	CodeComboNotFound         = "COMBO_NOT_FOUND"
	CodePromotionNotFound     = "PROMOTION_NOT_FOUND"
	CodePromotionNotYetActive = "PROMOTION_NOT_YET_ACTIVE"
	CodePromotionExpired      = "PROMOTION_EXPIRED"
	CodeTicketNotFound        = "TICKET_NOT_FOUND"
	CodeTicketNotPayable      = "TICKET_NOT_PAYABLE"
	CodeInvalidTicketState    = "INVALID_TICKET_STATE"
	CodePaymentNotFound       = "PAYMENT_NOT_FOUND"
	CodeInvalidSignature      = "INVALID_SIGNATURE"
	CodeUnauthenticated       = "UNAUTHENTICATED"
	CodeForbidden             = "FORBIDDEN"
	CodeGatewayRejected       = "GATEWAY_REJECTED"
	CodeGatewayUnreachable    = "GATEWAY_UNREACHABLE"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeInternal              = "INTERNAL"
)

// Error is the error type returned across the service boundary.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code so callers can compare against the sentinel helpers below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates an application error
func New(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an application error carrying an underlying cause
func Wrap(err error, kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(code, format string, args ...interface{}) *Error {
	return New(KindNotFound, code, format, args...)
}

func Conflict(code, format string, args ...interface{}) *Error {
	return New(KindConflict, code, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, CodeValidationFailed, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, CodeForbidden, format, args...)
}

func Unauthenticated(format string, args ...interface{}) *Error {
	return New(KindUnauthenticated, CodeUnauthenticated, format, args...)
}

func Internal(err error, format string, args ...interface{}) *Error {
	return Wrap(err, KindInternal, CodeInternal, format, args...)
}

// CodeOf extracts the stable code of err, or CodeInternal for foreign errors.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// KindOf extracts the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error onto the status code returned by the API.
// Domain rejections are reported as 400 so clients branch on the code field.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// PublicMessage returns the message safe to show to clients.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "internal error"
}
