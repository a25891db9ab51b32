package domain

import (
	"context"
	"time"
)

// KeyPrefix namespaces every store key written by omnidex.
const KeyPrefix = "omnidex:"

// Kind identifies a backend capability.
type Kind string

// Backend kinds.
const (
	// KindKeyword is exact/fuzzy term matching against an inverted index.
	KindKeyword Kind = "keyword"
	// KindVectorGraph is similarity retrieval with graph-relationship metadata.
	KindVectorGraph Kind = "vector_graph"
	// KindGenerative is language-model narrative generation.
	KindGenerative Kind = "generative"
)

// IsValid checks if the kind is one of the supported values.
func (k Kind) IsValid() bool {
	return k == KindKeyword || k == KindVectorGraph || k == KindGenerative
}

// Priority returns the fixed tie-break rank of the kind. Lower ranks win ties.
func (k Kind) Priority() int {
	switch k {
	case KindKeyword:
		return 0
	case KindVectorGraph:
		return 1
	case KindGenerative:
		return 2
	default:
		return 3
	}
}

// Status is the outcome of one adapter call.
type Status string

// Adapter call statuses.
const (
	StatusOK          Status = "ok"
	StatusTimeout     Status = "timeout"
	StatusUnavailable Status = "unavailable"
	StatusInvalid     Status = "invalid_response"
	StatusError       Status = "error"
	// StatusSkipped marks a call the orchestrator chose not to dispatch
	// (exhausted generative budget).
	StatusSkipped Status = "skipped"
)

// SubQuery is one backend-specific slice of a user query. Owned by the
// executor for the lifetime of a single orchestration call.
type SubQuery struct {
	Kind      Kind
	Terms     string            // keyword: query terms
	Filters   map[string]string // keyword: field filters (type, group, prop_*)
	Text      string            // vector_graph: similarity text
	Prompt    string            // generative: assembled prompt
	Context   []string          // generative: retrieval snippets
	Limit     int
	MaxTokens int
}

// Item is a single raw hit from a retrieval backend. ID is the cross-backend
// identity key used for de-duplication: the keyword engine indexes the graph
// node identifier, so hits for the same entity share it.
type Item struct {
	ID      string
	Score   float64
	Title   string
	Snippet string
	Source  string
	Related []string
	Fields  map[string]string
}

// Payload is the successful return value of an adapter call.
// Confidence is NaN when the backend did not report one.
type Payload struct {
	Items      []Item
	Answer     string
	Confidence float64
	Tokens     int
}

// BackendResult records the outcome of one adapter call. Raw scores are
// backend-local and not comparable across backends without normalization.
type BackendResult struct {
	Backend    Kind
	Name       string
	Status     Status
	Items      []Item
	Answer     string
	Confidence float64
	Tokens     int
	Err        error
	Elapsed    time.Duration
}

// OK reports whether the call produced a usable payload.
func (r BackendResult) OK() bool { return r.Status == StatusOK }

// Failure returns the metadata record for a non-ok result.
func (r BackendResult) Failure() BackendFailure {
	return BackendFailure{Name: r.Name, Backend: r.Backend, Status: r.Status}
}

// Adapter is the uniform contract every retrieval capability implements.
// Invoke must honor ctx cancellation and never block past its deadline;
// implementations are safe for concurrent invocation.
type Adapter interface {
	Kind() Kind
	Name() string
	Invoke(ctx context.Context, sq SubQuery) (Payload, error)
}

// HealthChecker verifies backend availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
