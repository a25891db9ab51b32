package fusion

import "github.com/kailas-cloud/omnidex/internal/domain"

// fuseRRF merges by Reciprocal Rank Fusion (Cormack et al., 2009):
// score(d) = sum over result sets of 1/(k + rank(d) + 1), rank zero-based.
// Rank-only fusion ignores raw score magnitudes entirely, so it needs no
// normalization; with k=60 and three backends every score stays within (0,1).
func (s *Service) fuseRRF(results []domain.BackendResult) []domain.FusedItem {
	acc, order := s.collect(results, func(e *entry, _ domain.Kind, rank int, _ float64) {
		e.score += 1.0 / float64(s.rrfK+rank+1)
	})
	return finalize(acc, order)
}
