package domain

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/omnidex/internal/domain/intent"
)

// Query parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length.
	MaxQueryLength = 4096
	DefaultLimit   = 20
	MaxLimit       = 100
)

// Query is one validated user turn input. Immutable once submitted.
type Query struct {
	conversationID string
	text           string
	hint           intent.Intent
	limit          int
}

// NewQuery validates and normalizes a raw query. An empty hint means
// "classify by rule". Default limit is 20, capped at 100.
func NewQuery(conversationID, text string, hint intent.Intent, limit int) (Query, error) {
	text = strings.TrimSpace(text)
	if conversationID == "" {
		return Query{}, fmt.Errorf("%w: conversation id is required", ErrInvalidQuery)
	}
	if text == "" {
		return Query{}, fmt.Errorf("%w: text is required", ErrInvalidQuery)
	}
	if len(text) > MaxQueryLength {
		return Query{}, fmt.Errorf("%w: text too long (max %d chars)", ErrInvalidQuery, MaxQueryLength)
	}
	if hint != "" && !hint.IsValid() {
		return Query{}, fmt.Errorf("%w: unknown intent hint %q", ErrInvalidQuery, hint)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Query{
		conversationID: conversationID,
		text:           text,
		hint:           hint,
		limit:          limit,
	}, nil
}

// ConversationID returns the conversation identifier.
func (q *Query) ConversationID() string { return q.conversationID }

// Text returns the raw query text.
func (q *Query) Text() string { return q.text }

// Hint returns the explicit intent hint, empty when none was given.
func (q *Query) Hint() intent.Intent { return q.hint }

// Limit returns the maximum number of fused items to return.
func (q *Query) Limit() int { return q.limit }
