package intent

// Intent is the query intent category.
type Intent string

// Intent constants.
const (
	// FactualLookup routes to the fast retrieval-only path.
	FactualLookup Intent = "factual_lookup"
	// RelationshipExploration prioritizes graph-similarity retrieval.
	RelationshipExploration Intent = "relationship_exploration"
	// Conversational engages all backends including the generative one.
	Conversational Intent = "conversational"
	// Command bypasses retrieval and runs a local action.
	Command Intent = "command"
)

// IsValid checks if the intent is one of the supported values.
func (i Intent) IsValid() bool {
	return i == FactualLookup || i == RelationshipExploration ||
		i == Conversational || i == Command
}

// Cacheable reports whether fused results for this intent may be served from
// cache. Conversational turns depend on dialogue history; commands are local
// actions.
func (i Intent) Cacheable() bool {
	return i == FactualLookup || i == RelationshipExploration
}
