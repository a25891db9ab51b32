package fusion

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/metrics"
)

// Fusion modes.
const (
	ModeWeighted = "weighted"
	ModeRRF      = "rrf"
)

const defaultRRFK = 60

// Config carries per-kind normalization strategies and merge weights.
// Missing kinds fall back to clamp normalization and weight 1.0.
type Config struct {
	Strategies map[domain.Kind]Strategy
	Weights    map[domain.Kind]float64
	Mode       string
	RRFK       int
}

// Service merges per-backend result sets into one ranked, de-duplicated list.
type Service struct {
	strategies map[domain.Kind]Strategy
	weights    map[domain.Kind]float64
	mode       string
	rrfK       int
}

// NewService creates a fusion service.
func NewService(cfg Config) (*Service, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeWeighted
	}
	if mode != ModeWeighted && mode != ModeRRF {
		return nil, fmt.Errorf("unknown fusion mode %q", mode)
	}

	for kind, w := range cfg.Weights {
		if w <= 0 {
			return nil, fmt.Errorf("fusion weight for %s must be positive, got %v", kind, w)
		}
	}

	rrfK := cfg.RRFK
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	return &Service{
		strategies: cfg.Strategies,
		weights:    cfg.Weights,
		mode:       mode,
		rrfK:       rrfK,
	}, nil
}

// Fuse merges backend results into a single ranked response. Failed calls
// contribute failure metadata only; the ranked list is built from successful
// calls, ordered by merged score descending with deterministic tie-breaks.
func (s *Service) Fuse(results []domain.BackendResult) domain.FusedResult {
	start := time.Now()

	var succeeded []domain.BackendResult
	var contributing []string
	var failed []domain.BackendFailure
	for _, r := range results {
		if r.OK() {
			succeeded = append(succeeded, r)
			contributing = append(contributing, r.Name)
		} else {
			failed = append(failed, r.Failure())
		}
	}

	var items []domain.FusedItem
	if s.mode == ModeRRF {
		items = s.fuseRRF(succeeded)
	} else {
		items = s.fuseWeighted(succeeded)
	}

	fused := domain.FusedResult{
		Items:        items,
		Confidence:   math.NaN(),
		Contributing: contributing,
		Failed:       failed,
		Partial:      len(failed) > 0,
	}

	for _, r := range succeeded {
		if r.Backend == domain.KindGenerative && r.Answer != "" {
			fused.Narrative = r.Answer
			if !math.IsNaN(r.Confidence) {
				fused.Confidence = r.Confidence
			}
			break
		}
	}

	metrics.FusionDuration.Observe(time.Since(start).Seconds())
	metrics.FusionResults.Observe(float64(len(items)))
	return fused
}

// entry accumulates one item's contributions across backends while merging.
type entry struct {
	id       string
	score    float64
	weight   float64
	kinds    []domain.Kind
	priority int
	title    string
	snippet  string
	source   string
	related  []string
	fields   map[string]string
}

// fuseWeighted merges by weighted mean of normalized scores:
// sum(w_i * norm_i) / sum(w_i) over the backends that returned the item.
func (s *Service) fuseWeighted(results []domain.BackendResult) []domain.FusedItem {
	acc, order := s.collect(results, func(e *entry, kind domain.Kind, _ int, norm float64) {
		w := s.weightFor(kind)
		e.score += w * norm
		e.weight += w
	})
	for _, id := range order {
		e := acc[id]
		e.score /= e.weight
	}
	return finalize(acc, order)
}

// collect folds every successful result set into per-ID entries. Result sets
// are visited in backend priority order so the highest-priority backend
// supplies the representative metadata. A backend contributes to an ID at
// most once; repeated hits within one batch keep the first occurrence.
func (s *Service) collect(
	results []domain.BackendResult,
	score func(e *entry, kind domain.Kind, rank int, norm float64),
) (map[string]*entry, []string) {
	sorted := make([]domain.BackendResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Backend.Priority() < sorted[j].Backend.Priority()
	})

	acc := make(map[string]*entry)
	var order []string
	for _, r := range sorted {
		raw := make([]float64, len(r.Items))
		for i, it := range r.Items {
			raw[i] = it.Score
		}
		norm := s.strategyFor(r.Backend).Apply(raw)

		for i, it := range r.Items {
			e, seen := acc[it.ID]
			if !seen {
				e = &entry{
					id:       it.ID,
					priority: r.Backend.Priority(),
					title:    it.Title,
					snippet:  it.Snippet,
					source:   it.Source,
				}
				acc[it.ID] = e
				order = append(order, it.ID)
			}
			if hasKind(e.kinds, r.Backend) {
				continue
			}
			e.kinds = append(e.kinds, r.Backend)
			if p := r.Backend.Priority(); p < e.priority {
				e.priority = p
			}
			mergeMetadata(e, it)
			score(e, r.Backend, i, norm[i])
		}
	}
	return acc, order
}

// finalize orders entries by score descending, then by best contributing
// backend priority, then by ID, and materializes the fused items.
func finalize(acc map[string]*entry, order []string) []domain.FusedItem {
	entries := make([]*entry, 0, len(order))
	for _, id := range order {
		entries = append(entries, acc[id])
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.id < b.id
	})

	items := make([]domain.FusedItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, domain.NewFusedItem(
			e.id, e.score, e.kinds,
			e.title, e.snippet, e.source,
			e.related, e.fields,
		))
	}
	return items
}

// mergeMetadata fills fields the representative backend left empty and
// unions graph relationships across backends.
func mergeMetadata(e *entry, it domain.Item) {
	if e.title == "" {
		e.title = it.Title
	}
	if e.snippet == "" {
		e.snippet = it.Snippet
	}
	if e.source == "" {
		e.source = it.Source
	}
	for _, rel := range it.Related {
		if !containsString(e.related, rel) {
			e.related = append(e.related, rel)
		}
	}
	for k, v := range it.Fields {
		if e.fields == nil {
			e.fields = make(map[string]string)
		}
		if _, ok := e.fields[k]; !ok {
			e.fields[k] = v
		}
	}
}

func (s *Service) strategyFor(kind domain.Kind) Strategy {
	if st, ok := s.strategies[kind]; ok {
		return st
	}
	return StrategyClamp
}

func (s *Service) weightFor(kind domain.Kind) float64 {
	if w, ok := s.weights[kind]; ok {
		return w
	}
	return 1.0
}

func hasKind(kinds []domain.Kind, k domain.Kind) bool {
	for _, kk := range kinds {
		if kk == k {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
