package chat

import (
	"chat-gateway/internal/service/llm"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the stable outward classification of a chat failure
type ErrorKind string

const (
	KindBadRequest      ErrorKind = "bad_request"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindQuotaExceeded   ErrorKind = "quota_exceeded"
	KindTooManyRequests ErrorKind = "too_many_requests"
	KindUnavailable     ErrorKind = "service_unavailable"
	KindNotFound        ErrorKind = "not_found"
	KindInternal        ErrorKind = "internal_error"
)

// Error is the dispatcher's outward error. Quota errors carry the numeric
// deficit so a client can show "need N more tokens".
type Error struct {
	Kind    ErrorKind
	Message string
	Deficit int
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// HTTPStatus maps the error kind to a transport status
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindQuotaExceeded:
		return http.StatusForbidden
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

func internalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, err: err}
}

func quotaExceeded(deficit int) *Error {
	return &Error{
		Kind:    KindQuotaExceeded,
		Message: fmt.Sprintf("daily token allowance exceeded, need %d more tokens", deficit),
		Deficit: deficit,
	}
}

// classifyProviderError maps a classified upstream failure onto the outward
// taxonomy; raw provider errors are never passed through
func classifyProviderError(err error) *Error {
	var provErr *llm.ProviderError
	if !errors.As(err, &provErr) {
		return internalError("provider call failed", err)
	}

	switch provErr.Kind {
	case llm.FailureTimeout:
		return &Error{Kind: KindUnavailable, Message: "provider timed out", err: err}
	case llm.FailureRateLimited:
		return &Error{Kind: KindTooManyRequests, Message: "provider rate limit hit", err: err}
	case llm.FailureUpstreamQuota:
		return &Error{Kind: KindTooManyRequests, Message: "provider quota exhausted", err: err}
	case llm.FailureAuthInvalid:
		return &Error{Kind: KindInternal, Message: "provider credential rejected", err: err}
	case llm.FailureUnavailable:
		return &Error{Kind: KindUnavailable, Message: "provider unavailable", err: err}
	default:
		return &Error{Kind: KindInternal, Message: "provider call failed", err: err}
	}
}

// AsError extracts a dispatcher *Error, wrapping anything else as internal
func AsError(err error) *Error {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr
	}
	return internalError("unexpected error", err)
}
