package omnidex

import (
	"time"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/domain/turn"
)

// Result is one fused retrieval response.
type Result struct {
	ConversationID string // set by Ask, empty for Search
	Items          []Item
	Narrative      string  // generative answer, empty without a generative backend
	Confidence     float64 // NaN when no backend reported one
	Intent         string
	Fallback       bool
	Action         string // command acknowledgment, empty otherwise
	Contributing   []string
	Failed         []Failure
	Partial        bool
	Took           time.Duration
}

// Item is one ranked, de-duplicated entry of a fused response.
type Item struct {
	ID       string
	Score    float64
	Backends []string
	Title    string
	Snippet  string
	Source   string
	Related  []string
	Fields   map[string]string
}

// Failure identifies one failed backend call.
type Failure struct {
	Name    string
	Backend string
	Status  string
}

// Turn is one dialogue entry of a conversation.
type Turn struct {
	ID        string
	Role      string
	Text      string
	CreatedAt time.Time
	ResultIDs []string
}

func toResult(conversationID string, r domain.FusedResult) Result {
	items := make([]Item, len(r.Items))
	for i := range r.Items {
		it := &r.Items[i]
		kinds := it.Backends()
		backends := make([]string, len(kinds))
		for j, k := range kinds {
			backends[j] = string(k)
		}
		items[i] = Item{
			ID:       it.ID(),
			Score:    it.Score(),
			Backends: backends,
			Title:    it.Title(),
			Snippet:  it.Snippet(),
			Source:   it.Source(),
			Related:  it.Related(),
			Fields:   it.Fields(),
		}
	}

	failed := make([]Failure, len(r.Failed))
	for i, f := range r.Failed {
		failed[i] = Failure{
			Name:    f.Name,
			Backend: string(f.Backend),
			Status:  string(f.Status),
		}
	}

	return Result{
		ConversationID: conversationID,
		Items:          items,
		Narrative:      r.Narrative,
		Confidence:     r.Confidence,
		Intent:         string(r.Intent),
		Fallback:       r.Fallback,
		Action:         r.Action,
		Contributing:   r.Contributing,
		Failed:         failed,
		Partial:        r.Partial,
		Took:           r.Took,
	}
}

func toTurns(turns []turn.Turn) []Turn {
	out := make([]Turn, len(turns))
	for i := range turns {
		t := &turns[i]
		out[i] = Turn{
			ID:        t.ID(),
			Role:      string(t.Role()),
			Text:      t.Text(),
			CreatedAt: t.CreatedAt(),
			ResultIDs: t.ResultIDs(),
		}
	}
	return out
}
