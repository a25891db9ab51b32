package chat

import (
	"context"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/domain/turn"
	"github.com/kailas-cloud/omnidex/internal/usecase/analyze"
)

// Analyzer classifies queries and plans their retrieval wave.
type Analyzer interface {
	Analyze(q domain.Query) analyze.Analysis
}

// Dispatcher fans sub-queries out to backend adapters.
type Dispatcher interface {
	Dispatch(ctx context.Context, subs []domain.SubQuery) ([]domain.BackendResult, error)
}

// Fuser merges backend results into one ranked response.
type Fuser interface {
	Fuse(results []domain.BackendResult) domain.FusedResult
}

// Memory holds per-conversation dialogue and last delivered results.
type Memory interface {
	Append(conversationID string, t turn.Turn)
	Recent(conversationID string, k int) []turn.Turn
	History(conversationID string) ([]turn.Turn, bool)
	SetLastResults(conversationID string, q domain.Query, items []domain.FusedItem)
	LastResults(conversationID string) (domain.Query, []domain.FusedItem, bool)
	Clear(conversationID string) bool
}

// ResultCache serves fused results for repeated retrieval queries.
type ResultCache interface {
	Get(ctx context.Context, key string) (domain.FusedResult, bool)
	Put(ctx context.Context, key string, res domain.FusedResult)
	Invalidate(ctx context.Context, key string)
}

// Budget gates generative calls against the token budget.
type Budget interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}
