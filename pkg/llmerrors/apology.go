package llmerrors

import "strings"

// Apology is the class of user-visible failure message for an aborted reading.
// Each class tells the user whether retrying right away is likely to help.
type Apology int

const (
	// ApologyNone means there was no error.
	ApologyNone Apology = iota
	// ApologyOverload: provider rate limiting, try again in a few minutes.
	ApologyOverload
	// ApologyQuota: provider balance exhausted, try again later.
	ApologyQuota
	// ApologyTimeout: the model took too long, an immediate retry is fine.
	ApologyTimeout
	// ApologyGeneric: any other transport failure.
	ApologyGeneric
	// ApologyUnexpected: a failure outside the transport layer.
	ApologyUnexpected
)

// String returns the apology class name used in logs and metrics.
func (a Apology) String() string {
	switch a {
	case ApologyNone:
		return "none"
	case ApologyOverload:
		return "overload"
	case ApologyQuota:
		return "quota"
	case ApologyTimeout:
		return "timeout"
	case ApologyGeneric:
		return "generic"
	case ApologyUnexpected:
		return "unexpected"
	default:
		return "invalid"
	}
}

// Classify picks the apology class for err. Typed transport failures are
// classified by type first and then by the provider's error text.
func Classify(err error) Apology {
	if err == nil {
		return ApologyNone
	}
	if !IsTransport(err) {
		return ApologyUnexpected
	}

	switch TypeOf(err) {
	case ErrorTypeRateLimit:
		return ApologyOverload
	case ErrorTypeQuota:
		return ApologyQuota
	case ErrorTypeTimeout:
		return ApologyTimeout
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "rate limit") || strings.Contains(text, "too many requests"):
		return ApologyOverload
	case strings.Contains(text, "insufficient credits") || strings.Contains(text, "balance"):
		return ApologyQuota
	case strings.Contains(text, "timeout") || strings.Contains(text, "connection"):
		return ApologyTimeout
	default:
		return ApologyGeneric
	}
}
