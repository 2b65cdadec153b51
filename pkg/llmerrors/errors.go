// Package llmerrors provides structured error classification for completion-endpoint calls
// and maps failures onto the apology classes shown to users.
package llmerrors

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument marks precondition violations (bad count, empty model, missing credentials).
// These are configuration or programming errors and are never retried.
var ErrInvalidArgument = errors.New("invalid argument")

// InvalidArgument wraps ErrInvalidArgument with a formatted reason.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ErrorType represents different categories of transport failures.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeRateLimit represents rate limiting errors (429, too many requests).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, malformed body).
	ErrorTypeTransient
	// ErrorTypeTimeout represents request deadlines hit on the HTTP client.
	ErrorTypeTimeout
	// ErrorTypeEmptyResponse represents HTTP 200 with no choices or blank content.
	ErrorTypeEmptyResponse

	// Non-retryable error types.

	// ErrorTypeQuota represents exhausted provider credits (402, insufficient balance).
	ErrorTypeQuota
	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents rejected requests (400, 404, 413, 422).
	ErrorTypeBadPrompt
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown

	// ErrorTypeServiceUnavailable is emitted by the retry layer once attempts are exhausted.
	ErrorTypeServiceUnavailable
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeQuota:
		return "quota"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeServiceUnavailable:
		return "service_unavailable"
	default:
		return "invalid"
	}
}

// maxBodyStub bounds how much of a provider response body is kept on an error.
const maxBodyStub = 512

// Error is a transport failure: network, HTTP status, malformed or empty response.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	BodyStub   string    // First portion of response body
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "transport error (%s)", e.Type.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.BodyStub != "" {
		b.WriteString(": ")
		b.WriteString(e.BodyStub)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the transport layer may retry this failure.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeTimeout, ErrorTypeEmptyResponse:
		return true
	default:
		return false
	}
}

// IsTransport reports whether err is (or wraps) a transport failure.
func IsTransport(err error) bool {
	var llmErr *Error
	return errors.As(err, &llmErr)
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the root transport type of an error. ServiceUnavailable is
// looked through to the failure that exhausted the retries.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if !errors.As(err, &llmErr) {
		return ErrorTypeUnknown
	}
	if llmErr.Type == ErrorTypeServiceUnavailable && llmErr.Err != nil {
		var inner *Error
		if errors.As(llmErr.Err, &inner) {
			return inner.Type
		}
	}
	return llmErr.Type
}

// NewError creates a new classified transport error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithStatus creates a new classified error carrying the HTTP status and a body stub.
func NewErrorWithStatus(errorType ErrorType, statusCode int, body string) *Error {
	return &Error{
		Type:       errorType,
		StatusCode: statusCode,
		BodyStub:   StubBody(body),
	}
}

// NewErrorWithCause creates a new classified error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{
		Type:    errorType,
		Err:     cause,
		Message: message,
	}
}

// NewServiceUnavailableError wraps the last failure once the retry budget is spent.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Err:     cause,
		Message: fmt.Sprintf("giving up after %d attempts", attempts),
	}
}

// TypeForStatus maps an HTTP status onto an error type.
func TypeForStatus(status int) ErrorType {
	switch {
	case status == 429:
		return ErrorTypeRateLimit
	case status == 402:
		return ErrorTypeQuota
	case status == 401 || status == 403:
		return ErrorTypeAuth
	case status == 408:
		return ErrorTypeTimeout
	case status >= 500:
		return ErrorTypeTransient
	case status >= 400:
		return ErrorTypeBadPrompt
	default:
		return ErrorTypeUnknown
	}
}

// StubBody trims a response body to a loggable prefix.
func StubBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= maxBodyStub {
		return body
	}
	return body[:maxBodyStub] + "..."
}

// SanitizePrompt creates a safe representation of a prompt for logging.
// For large prompts, it returns first/last portions plus a hash of the full content.
func SanitizePrompt(prompt string, maxChars int) string {
	if len(prompt) <= maxChars {
		return prompt
	}

	halfMax := maxChars / 2
	if halfMax < 100 {
		halfMax = 100
	}
	if 2*halfMax >= len(prompt) {
		return prompt
	}

	hash := sha256.Sum256([]byte(prompt))
	hashStr := fmt.Sprintf("%x", hash)[:16]

	return fmt.Sprintf("%s...[%d chars, hash:%s]...%s",
		prompt[:halfMax], len(prompt), hashStr, prompt[len(prompt)-halfMax:])
}
