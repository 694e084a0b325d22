// Package resilience implements the Backend Invoker's one-shot service-tier fallback
// classification (§4.5): detecting whether a Bedrock error is the specific "service tier not
// supported" validation failure the invoker is allowed to retry once.
package resilience

import "strings"

// IsServiceTierRejection reports whether err is a ValidationException whose message mentions
// "service tier" — the one condition §4.5 permits a fallback retry for. Every other error
// (throttling, internal, network) must propagate untouched.
//
// Narrowed from the teacher's isRetryableError, which classified a broad family of
// timeout/rate-limit/server-error conditions for a generic exponential-backoff retry loop; this
// spec allows exactly one retry for exactly one condition, so the generic loop and its
// RetryConfig have no component left to serve and are not carried forward.
func IsServiceTierRejection(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "validationexception") && strings.Contains(msg, "service tier")
}
