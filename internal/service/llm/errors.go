package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FailureKind classifies an upstream provider failure. Raw provider errors
// never leave this package unclassified.
type FailureKind string

const (
	FailureTimeout       FailureKind = "timeout"
	FailureRateLimited   FailureKind = "rate_limited"
	FailureUpstreamQuota FailureKind = "upstream_quota"
	FailureAuthInvalid   FailureKind = "auth_invalid"
	FailureUnavailable   FailureKind = "unavailable"
	FailureUnknown       FailureKind = "unknown"
)

// ProviderError is a classified upstream failure
type ProviderError struct {
	Kind     FailureKind
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// classifyStatus maps an upstream HTTP status to a failure kind
func classifyStatus(status int) FailureKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailureAuthInvalid
	case status == http.StatusPaymentRequired:
		return FailureUpstreamQuota
	case status == http.StatusTooManyRequests:
		return FailureRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return FailureTimeout
	case status >= 500:
		return FailureUnavailable
	default:
		return FailureUnknown
	}
}

// classifyTransportError maps a transport-level error to a failure kind
func classifyTransportError(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureUnavailable
}
