package common

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// GRPCStatus lets status.FromError surface an AppError with a matching code.
func (e *AppError) GRPCStatus() *status.Status {
	c := codes.Internal
	switch {
	case errors.Is(e.Cause, ErrProviderConfig), errors.Is(e.Cause, ErrInvalidInput), errors.Is(e.Cause, ErrValidation):
		c = codes.InvalidArgument
	case errors.Is(e.Cause, ErrNotFound):
		c = codes.NotFound
	case errors.Is(e.Cause, ErrUnsupported):
		c = codes.Unimplemented
	}
	return status.New(c, e.Error())
}

// Error codes carried by AppError.
const (
	CodeConfig     = "CONFIG_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeStore      = "STORE_ERROR"
)

// Common application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternal       = errors.New("internal error")
	ErrDatabase       = errors.New("database error")
	ErrValidation     = errors.New("validation failed")
	ErrUnsupported    = errors.New("unsupported")
	ErrProviderCall   = errors.New("provider call failed")
	ErrProviderConfig = errors.New("provider not configured")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ConfigError reports missing or invalid provider settings, before any network call.
func ConfigError(format string, args ...any) *AppError {
	return NewAppError(CodeConfig, fmt.Sprintf(format, args...), ErrProviderConfig)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ProviderError is a failed call to an OCR provider. StatusCode is 0 when no HTTP
// response was received.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	var msg string
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Message)
	} else {
		msg = fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both ErrProviderCall and the underlying cause to errors.Is.
func (e *ProviderError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrProviderCall}
	}
	return []error{ErrProviderCall, e.Cause}
}

func (e *ProviderError) GRPCStatus() *status.Status {
	return status.New(codeForHTTP(e.StatusCode), e.Error())
}

func NewProviderError(provider string, statusCode int, message string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: statusCode, Message: message, Cause: cause}
}

func codeForHTTP(sc int) codes.Code {
	switch {
	case sc == 0:
		return codes.Unavailable
	case sc == http.StatusBadRequest, sc == http.StatusUnprocessableEntity:
		return codes.InvalidArgument
	case sc == http.StatusUnauthorized:
		return codes.Unauthenticated
	case sc == http.StatusForbidden:
		return codes.PermissionDenied
	case sc == http.StatusNotFound:
		return codes.NotFound
	case sc == http.StatusRequestTimeout, sc == http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case sc == http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case sc >= 500:
		return codes.Unavailable
	}
	return codes.Unknown
}

// ToStatus converts any error into a gRPC status, keeping codes carried by typed errors.
func ToStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	if s, ok := status.FromError(err); ok {
		return s
	}
	return status.New(codes.Internal, err.Error())
}
