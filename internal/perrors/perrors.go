// Package perrors defines the error taxonomy shared by the portal's services and HTTP layer.
// Each error carries a stable code and the HTTP status the view layer maps it to.
package perrors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
)

// ErrCode pairs a machine-readable code with an HTTP status.
type ErrCode struct {
	Code   string `json:"code"`
	Status int    `json:"status"`
}

var (
	ErrCodeUnauthenticated = ErrCode{"unauthenticated", http.StatusUnauthorized}
	ErrCodeForbidden       = ErrCode{"forbidden", http.StatusForbidden}
	ErrCodeValidation      = ErrCode{"validation_error", http.StatusBadRequest}
	ErrCodeNotFound        = ErrCode{"not_found", http.StatusNotFound}
	ErrCodeInternal        = ErrCode{"internal_server_error", http.StatusInternalServerError}
)

// Err is a classified error. Message is safe to show to the user; the wrapped
// cause is only logged.
type Err struct {
	Code       ErrCode
	Message    string
	Cause      error
	Stacktrace []string
	Args       map[string]any
}

func (e *Err) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Err) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code the error maps to.
func (e *Err) HTTPStatus() int {
	return e.Code.Status
}

// Print logs the error with its args and captured stack.
func (e *Err) Print(ctx context.Context) {
	attrs := []any{slog.String("code", e.Code.Code)}
	if e.Cause != nil {
		attrs = append(attrs, slog.Any("error", e.Cause))
	}
	for k, v := range e.Args {
		attrs = append(attrs, slog.Any(k, v))
	}
	attrs = append(attrs, slog.Any("stacktrace", e.Stacktrace))
	slog.ErrorContext(ctx, e.Message, attrs...)
}

// New builds a classified error, capturing the caller's stack.
func New(code ErrCode, msg string, cause error, args ...map[string]any) error {
	pc := make([]uintptr, 20)
	count := runtime.Callers(2, pc)
	frames := runtime.CallersFrames(pc[:count])

	var stacktrace []string
	for {
		frame, more := frames.Next()
		stacktrace = append(stacktrace, fmt.Sprintf("%s:%d", frame.File, frame.Line))
		if !more {
			break
		}
	}

	var merged map[string]any
	if len(args) > 0 {
		merged = make(map[string]any)
		for _, a := range args {
			for k, v := range a {
				merged[k] = v
			}
		}
	}

	return &Err{
		Code:       code,
		Message:    msg,
		Cause:      cause,
		Stacktrace: stacktrace,
		Args:       merged,
	}
}

func NewUnauthenticated(msg string, cause error) error {
	return New(ErrCodeUnauthenticated, msg, cause)
}

func NewForbidden(msg string, args ...map[string]any) error {
	return New(ErrCodeForbidden, msg, nil, args...)
}

func NewValidation(msg string) error {
	return New(ErrCodeValidation, msg, nil)
}

func NewNotFound(msg string, args ...map[string]any) error {
	return New(ErrCodeNotFound, msg, nil, args...)
}

func NewInternal(msg string, cause error) error {
	return New(ErrCodeInternal, msg, cause)
}

// CodeOf returns the code of the first classified error in err's chain,
// or ErrCodeInternal when err is unclassified.
func CodeOf(err error) ErrCode {
	var e *Err
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Is reports whether err's chain contains a classified error with the given code.
func Is(err error, code ErrCode) bool {
	var e *Err
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// MessageOf returns the user-facing message of err, or a generic message for
// unclassified errors so internal details never reach a page.
func MessageOf(err error) string {
	var e *Err
	if errors.As(err, &e) && e.Code != ErrCodeInternal {
		return e.Message
	}
	return "Something went wrong. Please try again."
}
