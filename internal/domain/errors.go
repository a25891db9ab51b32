package domain

import (
	"errors"
	"strings"
)

var (
	// ErrBackendTimeout signals an adapter call that exceeded its deadline.
	ErrBackendTimeout = errors.New("backend timeout")
	// ErrBackendUnavailable signals a connection or transport failure.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrBackendInvalidResponse signals a malformed backend payload.
	ErrBackendInvalidResponse = errors.New("backend invalid response")
	// ErrAllBackendsFailed signals that no dispatched backend produced a result.
	ErrAllBackendsFailed = errors.New("all backends failed")

	// ErrConversationNotFound signals an unknown conversation identifier.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrInvalidQuery signals a malformed user query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrGenerativeQuotaExceeded signals an exhausted generative token budget.
	ErrGenerativeQuotaExceeded = errors.New("generative quota exceeded")
)

// AllBackendsFailedError wraps ErrAllBackendsFailed with per-backend failure detail.
type AllBackendsFailedError struct {
	Failures []BackendFailure
}

func (e *AllBackendsFailedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Name + "=" + string(f.Status)
	}
	return ErrAllBackendsFailed.Error() + ": " + strings.Join(parts, ", ")
}

func (e *AllBackendsFailedError) Unwrap() error { return ErrAllBackendsFailed }

// NewAllBackendsFailed creates an all-backends-failed error.
func NewAllBackendsFailed(failures []BackendFailure) error {
	return &AllBackendsFailedError{Failures: failures}
}
