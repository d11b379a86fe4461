package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error represents an application error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the same kind of application error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap returns a copy of kind carrying cause. errors.Is(result, kind) holds.
func Wrap(kind *Error, cause error) *Error {
	return &Error{Code: kind.Code, Message: kind.Message, Err: cause}
}

// Wrapf is Wrap with a formatted cause.
func Wrapf(kind *Error, format string, args ...any) *Error {
	return Wrap(kind, fmt.Errorf(format, args...))
}

// Is is errors.Is re-exported so callers do not need both packages.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As re-exported.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Common error types
var (
	ErrNotFound           = New(http.StatusNotFound, "Not found", nil)
	ErrInternalServer     = New(http.StatusInternalServerError, "Internal server error", nil)
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "Service unavailable", nil)
	ErrTooManyRequests    = New(http.StatusTooManyRequests, "Rate limit exceeded", nil)
)

// Reconciliation error types. Codes are the webhook-facing defaults; they decide
// whether the payment provider redelivers.
var (
	ErrParse             = New(http.StatusBadRequest, "Malformed notification", nil)
	ErrVerification      = New(http.StatusInternalServerError, "Payment verification failed", nil)
	ErrGatewayMismatch   = New(http.StatusOK, "Gateway mismatch", nil)
	ErrInvalidTransition = New(http.StatusConflict, "Invalid status transition", nil)
	ErrUnknownCharge     = New(http.StatusUnprocessableEntity, "Charge not recognized by gateway", nil)
)

// Confirmation token error types
var (
	ErrTokenInvalid = New(http.StatusBadRequest, "Invalid token", nil)
	ErrTokenExpired = New(http.StatusGone, "Token expired", nil)
	ErrTokenUsed    = New(http.StatusOK, "Token already used", nil)
)

// Database error types
var (
	ErrDatabaseQuery       = New(http.StatusInternalServerError, "Database query error", nil)
	ErrDatabaseTransaction = New(http.StatusInternalServerError, "Database transaction error", nil)
)

// StatusCode returns the HTTP code carried by err, or 500.
func StatusCode(err error) int {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// ErrorMiddleware renders the last error attached with c.Error.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			appErr := toAppError(c.Errors.Last().Err)
			c.JSON(appErr.Code, appErr)
			c.Abort()
		}
	}
}

func toAppError(err error) *Error {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(ErrInternalServer, err)
}
