package omnidex

import "github.com/kailas-cloud/omnidex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidQuery            = domain.ErrInvalidQuery
	ErrConversationNotFound    = domain.ErrConversationNotFound
	ErrAllBackendsFailed       = domain.ErrAllBackendsFailed
	ErrGenerativeQuotaExceeded = domain.ErrGenerativeQuotaExceeded
	ErrBackendTimeout          = domain.ErrBackendTimeout
	ErrBackendUnavailable      = domain.ErrBackendUnavailable
	ErrBackendInvalidResponse  = domain.ErrBackendInvalidResponse
)
