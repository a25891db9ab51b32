package turn

import (
	"fmt"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

// Turn roles.
const (
	User      Role = "user"
	Assistant Role = "assistant"
)

// IsValid checks if the role is one of the supported values.
func (r Role) IsValid() bool { return r == User || r == Assistant }

// Turn is a single conversation entry. Never mutated after creation, only
// appended to the conversation history.
type Turn struct {
	id        string
	role      Role
	text      string
	createdAt time.Time
	resultIDs []string
}

// New validates and creates a turn. A zero createdAt defaults to now (UTC).
func New(id string, role Role, text string, createdAt time.Time, resultIDs []string) (Turn, error) {
	if id == "" {
		return Turn{}, fmt.Errorf("turn id is required")
	}
	if !role.IsValid() {
		return Turn{}, fmt.Errorf("invalid turn role: %q", role)
	}
	if text == "" {
		return Turn{}, fmt.Errorf("turn text is required")
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return Turn{
		id:        id,
		role:      role,
		text:      text,
		createdAt: createdAt,
		resultIDs: resultIDs,
	}, nil
}

// ID returns the turn identifier.
func (t *Turn) ID() string { return t.id }

// Role returns the turn author role.
func (t *Turn) Role() Role { return t.role }

// Text returns the turn text.
func (t *Turn) Text() string { return t.text }

// CreatedAt returns the turn creation time.
func (t *Turn) CreatedAt() time.Time { return t.createdAt }

// ResultIDs returns the identifiers of results attached to the turn.
func (t *Turn) ResultIDs() []string { return t.resultIDs }
