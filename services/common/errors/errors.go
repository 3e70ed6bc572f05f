// Package errors renders application errors as JSON HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error is an error with the HTTP status it should be reported as.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code int, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func BadRequest(message string, err error) *Error {
	return New(http.StatusBadRequest, message, err)
}

func NotFound(message string, err error) *Error {
	return New(http.StatusNotFound, message, err)
}

func Conflict(message string, err error) *Error {
	return New(http.StatusConflict, message, err)
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, "internal server error", err)
}

// Mapping pairs a sentinel with the status and message it is reported as.
type Mapping struct {
	Target  error
	Code    int
	Message string
}

// Classify returns the first mapping err matches, or a 500 Error.
func Classify(err error, mappings ...Mapping) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, m := range mappings {
		if errors.Is(err, m.Target) {
			return New(m.Code, m.Message, err)
		}
	}
	return Internal(err)
}

// ErrorMiddleware renders the last error attached with c.Error. Non-Error
// values become 500s without leaking their text.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		var appErr *Error
		if !errors.As(err, &appErr) {
			appErr = Internal(err)
		}
		c.AbortWithStatusJSON(appErr.Code, gin.H{"error": appErr.Message})
	}
}
