package rescache

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/domain/intent"
)

type itemDTO struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Backends []string          `json:"backends"`
	Title    string            `json:"title,omitempty"`
	Snippet  string            `json:"snippet,omitempty"`
	Source   string            `json:"source,omitempty"`
	Related  []string          `json:"related,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

type resultDTO struct {
	Items        []itemDTO `json:"items"`
	Intent       string    `json:"intent"`
	Contributing []string  `json:"contributing,omitempty"`
}

// encodeResult serializes the cacheable subset of a fused result. Narrative,
// confidence, failure and command state never enter the cache: only
// retrieval-backed intents are cacheable and those carry none of them.
func encodeResult(res domain.FusedResult) ([]byte, error) {
	dto := resultDTO{
		Items:        make([]itemDTO, 0, len(res.Items)),
		Intent:       string(res.Intent),
		Contributing: res.Contributing,
	}
	for i := range res.Items {
		item := &res.Items[i]
		kinds := item.Backends()
		backends := make([]string, 0, len(kinds))
		for _, k := range kinds {
			backends = append(backends, string(k))
		}
		dto.Items = append(dto.Items, itemDTO{
			ID:       item.ID(),
			Score:    item.Score(),
			Backends: backends,
			Title:    item.Title(),
			Snippet:  item.Snippet(),
			Source:   item.Source(),
			Related:  item.Related(),
			Fields:   item.Fields(),
		})
	}

	data, err := json.Marshal(dto)
	if err != nil {
		return nil, fmt.Errorf("marshal cached result: %w", err)
	}
	return data, nil
}

func decodeResult(data []byte) (domain.FusedResult, error) {
	var dto resultDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return domain.FusedResult{}, fmt.Errorf("unmarshal cached result: %w", err)
	}

	res := domain.FusedResult{
		Items:        make([]domain.FusedItem, 0, len(dto.Items)),
		Intent:       intent.Intent(dto.Intent),
		Confidence:   math.NaN(),
		Contributing: dto.Contributing,
	}
	for _, it := range dto.Items {
		kinds := make([]domain.Kind, 0, len(it.Backends))
		for _, b := range it.Backends {
			kinds = append(kinds, domain.Kind(b))
		}
		res.Items = append(res.Items, domain.NewFusedItem(
			it.ID, it.Score, kinds,
			it.Title, it.Snippet, it.Source,
			it.Related, it.Fields,
		))
	}
	return res, nil
}
