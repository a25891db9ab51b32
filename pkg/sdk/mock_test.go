package omnidex

import (
	"context"
	"time"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/domain/intent"
	"github.com/kailas-cloud/omnidex/internal/domain/turn"
	domusage "github.com/kailas-cloud/omnidex/internal/domain/usage"
	healthuc "github.com/kailas-cloud/omnidex/internal/usecase/health"
)

// --- chatUseCase mock ---

type mockChatUC struct {
	handleFn  func(ctx context.Context, q domain.Query) (domain.FusedResult, error)
	searchFn  func(ctx context.Context, q domain.Query) (domain.FusedResult, error)
	historyFn func(conversationID string) ([]turn.Turn, error)
	forgetFn  func(conversationID string) error
}

func (m *mockChatUC) HandleTurn(ctx context.Context, q domain.Query) (domain.FusedResult, error) {
	return m.handleFn(ctx, q)
}

func (m *mockChatUC) Search(ctx context.Context, q domain.Query) (domain.FusedResult, error) {
	return m.searchFn(ctx, q)
}

func (m *mockChatUC) History(conversationID string) ([]turn.Turn, error) {
	return m.historyFn(conversationID)
}

func (m *mockChatUC) Forget(conversationID string) error {
	return m.forgetFn(conversationID)
}

// --- healthUseCase mock ---

type mockHealthUC struct {
	checkFn func(ctx context.Context) healthuc.Report
}

func (m *mockHealthUC) Check(ctx context.Context) healthuc.Report {
	return m.checkFn(ctx)
}

// --- usageUseCase mock ---

type mockUsageUC struct {
	reportFn func(ctx context.Context, period domusage.Period) domusage.Report
}

func (m *mockUsageUC) GetReport(ctx context.Context, period domusage.Period) domusage.Report {
	return m.reportFn(ctx, period)
}

// --- helpers ---

func testClient(chatSvc chatUseCase) *Client {
	return &Client{chatSvc: chatSvc}
}

func fusedFixture() domain.FusedResult {
	return domain.FusedResult{
		Items: []domain.FusedItem{
			domain.NewFusedItem(
				"node-1", 0.91,
				[]domain.Kind{domain.KindKeyword, domain.KindVectorGraph},
				"Raft", "Leader election protocol", "solr",
				[]string{"node-3"}, nil,
			),
			domain.NewFusedItem(
				"node-2", 0.44,
				[]domain.Kind{domain.KindKeyword},
				"Paxos", "Classic consensus", "solr",
				nil, nil,
			),
		},
		Narrative:    "Raft elects a leader per term.",
		Confidence:   0.87,
		Intent:       intent.FactualLookup,
		Contributing: []string{"solr", "neo4j"},
		Took:         12 * time.Millisecond,
	}
}
