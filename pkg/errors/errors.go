// Package errors defines the classified error types produced while dispatching
// chat requests to upstream providers. Every adapter and core component reports
// failures through ClassifiedError so the orchestrator can decide between
// rotating credentials and aborting.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ClassifiedError is the standardized failure of a provider call or of the
// dispatch machinery around it.
type ClassifiedError struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Provider   string `json:"provider,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Cause      error  `json:"-"`
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s (provider=%s, code=%d)", e.Type, e.Message, e.Provider, e.StatusCode)
}

// Unwrap exposes the underlying cause, if any.
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// HTTPStatusCode returns the status the caller layer should answer with.
func (e *ClassifiedError) HTTPStatusCode() int {
	return StatusForClass(e.Type)
}

// StatusForClass maps an error class, as returned by Classify, onto an HTTP
// status.
func StatusForClass(class string) int {
	switch class {
	case TypeConfiguration, TypeProviderUnavailable:
		return http.StatusServiceUnavailable
	case TypeCredential:
		return http.StatusBadGateway
	case TypeQuota:
		return http.StatusTooManyRequests
	case TypeTransport:
		return http.StatusGatewayTimeout
	case TypeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// Error classes.
const (
	TypeConfiguration       = "configuration_error"
	TypeCredential          = "credential_error"
	TypeQuota               = "quota_exceeded_error"
	TypeTransport           = "transport_error"
	TypeFormat              = "format_error"
	TypeProviderUnavailable = "provider_unavailable_error"
	TypeUpstream            = "upstream_error"
	TypeInvalidRequest      = "invalid_request_error"
)

// NewConfigurationError reports a provider with no usable credentials or
// other missing setup.
func NewConfigurationError(provider, message string) *ClassifiedError {
	return &ClassifiedError{Type: TypeConfiguration, Message: message, Provider: provider}
}

// NewCredentialError reports a rejected credential (401/403 class).
func NewCredentialError(provider string, statusCode int, message string) *ClassifiedError {
	return &ClassifiedError{Type: TypeCredential, Message: message, Provider: provider, StatusCode: statusCode}
}

// NewQuotaError reports upstream rate limiting or exhausted quota.
func NewQuotaError(provider string, statusCode int, message string) *ClassifiedError {
	return &ClassifiedError{Type: TypeQuota, Message: message, Provider: provider, StatusCode: statusCode}
}

// NewTransportError wraps a network-level failure (DNS, connect, timeout).
func NewTransportError(provider string, cause error) *ClassifiedError {
	msg := "transport failure"
	if cause != nil {
		msg = cause.Error()
	}
	return &ClassifiedError{Type: TypeTransport, Message: msg, Provider: provider, Cause: cause}
}

// NewFormatError reports a 2xx response whose body could not be understood.
func NewFormatError(provider, message string) *ClassifiedError {
	return &ClassifiedError{Type: TypeFormat, Message: message, Provider: provider}
}

// NewUpstreamError reports any other non-2xx status from the provider.
func NewUpstreamError(provider string, statusCode int, message string) *ClassifiedError {
	return &ClassifiedError{Type: TypeUpstream, Message: message, Provider: provider, StatusCode: statusCode}
}

// NewProviderUnavailableError reports a request for a provider that is not
// currently selectable.
func NewProviderUnavailableError(provider string) *ClassifiedError {
	return &ClassifiedError{
		Type:     TypeProviderUnavailable,
		Message:  fmt.Sprintf("provider %q is not available", provider),
		Provider: provider,
	}
}

// NewInvalidRequestError reports a malformed canonical request.
func NewInvalidRequestError(message string) *ClassifiedError {
	return &ClassifiedError{Type: TypeInvalidRequest, Message: message}
}

// As is a convenience wrapper around errors.As for ClassifiedError.
func As(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
