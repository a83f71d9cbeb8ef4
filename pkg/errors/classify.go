package errors

import (
	"context"
	stderrors "errors"
	"net"
	"strings"
)

// rule maps a case-insensitive message fragment to an error class.
type rule struct {
	fragment string
	class    string
}

// keyRules decides whether a failure is attributable to the credential that
// was used. Order matters: the first matching fragment wins.
var keyRules = []rule{
	{"invalid api key", TypeCredential},
	{"unauthorized", TypeCredential},
	{"authentication failed", TypeCredential},
	{"quota exceeded", TypeQuota},
	{"rate limit", TypeQuota},
	{"insufficient quota", TypeQuota},
	{"api key not found", TypeCredential},
	{"401", TypeCredential},
	{"403", TypeCredential},
	{"429", TypeQuota},
}

const maxSummaryLen = 256

// Classify returns the error class of err. Transport failures never reached
// the provider and keep their class. Otherwise message fragments from the key
// rule table take precedence, then the typed class of a ClassifiedError, then
// transport detection, then TypeUpstream.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if ce, ok := As(err); ok && ce.Type == TypeTransport {
		return TypeTransport
	}
	msg := strings.ToLower(err.Error())
	for _, r := range keyRules {
		if strings.Contains(msg, r.fragment) {
			return r.class
		}
	}
	if ce, ok := As(err); ok {
		return ce.Type
	}
	if isTransport(err) {
		return TypeTransport
	}
	return TypeUpstream
}

// IsKeyRelated reports whether rotating to another credential may cure err.
func IsKeyRelated(err error) bool {
	switch Classify(err) {
	case TypeCredential, TypeQuota:
		return true
	default:
		return false
	}
}

// Summary renders err as "<class>: <message>" bounded for storage in quota
// records.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if ce, ok := As(err); ok {
		msg = ce.Message
	}
	if len(msg) > maxSummaryLen {
		msg = msg[:maxSummaryLen]
	}
	return Classify(err) + ": " + msg
}

// UserMessage translates the final dispatch error into text suitable for an
// end user. It never includes credential material or raw upstream bodies.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	lower := strings.ToLower(err.Error())
	if ce, ok := As(err); ok {
		switch ce.Type {
		case TypeConfiguration:
			return "This AI service is not configured yet: no API keys are available. Please contact the administrator."
		case TypeProviderUnavailable:
			return "The selected AI service is currently unavailable. Please choose another provider."
		case TypeInvalidRequest:
			return "The request could not be processed: " + ce.Message
		}
	}
	switch Classify(err) {
	case TypeCredential:
		if strings.Contains(lower, "403") || strings.Contains(lower, "forbidden") {
			return "Access to this AI service was denied. Please check the account permissions."
		}
		return "The API key for this AI service is invalid or has expired. Please contact the administrator."
	case TypeQuota:
		return "This AI service has exhausted its quota or is rate limited. Please try again later or switch provider."
	case TypeTransport:
		return "The AI service could not be reached. Please try again later."
	default:
		return "The AI service failed to answer. Please try again later."
	}
}

func isTransport(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr)
}
