package domain

import (
	"time"

	"github.com/kailas-cloud/omnidex/internal/domain/intent"
)

// BackendFailure identifies one failed adapter call in response metadata.
type BackendFailure struct {
	Name    string
	Backend Kind
	Status  Status
}

// FusedItem is one ranked, de-duplicated entry of a fused response.
type FusedItem struct {
	id       string
	score    float64
	backends []Kind
	title    string
	snippet  string
	source   string
	related  []string
	fields   map[string]string
}

// NewFusedItem creates a fused result entry.
func NewFusedItem(
	id string, score float64, backends []Kind,
	title, snippet, source string,
	related []string, fields map[string]string,
) FusedItem {
	return FusedItem{
		id: id, score: score, backends: backends,
		title: title, snippet: snippet, source: source,
		related: related, fields: fields,
	}
}

// ID returns the identity key of the entry.
func (f *FusedItem) ID() string { return f.id }

// Score returns the merged normalized score in [0,1].
func (f *FusedItem) Score() float64 { return f.score }

// Backends returns the kinds that contributed to this entry.
func (f *FusedItem) Backends() []Kind { return f.backends }

// Title returns the entry title.
func (f *FusedItem) Title() string { return f.title }

// Snippet returns the entry content snippet.
func (f *FusedItem) Snippet() string { return f.snippet }

// Source returns the attribution of the backend that first returned the entry.
func (f *FusedItem) Source() string { return f.source }

// Related returns identifiers of graph-related entries.
func (f *FusedItem) Related() []string { return f.related }

// Fields returns extra backend payload fields.
func (f *FusedItem) Fields() map[string]string { return f.fields }

// FusedResult is the canonical orchestration output: strictly descending by
// score, item IDs unique. Confidence is NaN when no generative backend
// reported one.
type FusedResult struct {
	Items        []FusedItem
	Narrative    string
	Confidence   float64
	Intent       intent.Intent
	Fallback     bool
	Action       string
	Contributing []string
	Failed       []BackendFailure
	Partial      bool
	Took         time.Duration
}

// Empty reports the explicit empty-result state: backends succeeded but
// found nothing. Distinct from AllBackendsFailed.
func (r *FusedResult) Empty() bool {
	return len(r.Items) == 0 && r.Narrative == "" && r.Action == ""
}
