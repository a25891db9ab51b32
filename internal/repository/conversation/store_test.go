package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/domain/turn"
)

func newTestStore(t *testing.T, capacity, maxConversations int) *Store {
	t.Helper()
	s, err := New(Config{
		Capacity:         capacity,
		MaxConversations: maxConversations,
		IdleTTL:          30 * time.Minute,
		JanitorInterval:  5 * time.Minute,
	}, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func mkTurn(t *testing.T, id, text string) turn.Turn {
	t.Helper()
	tr, err := turn.New(id, turn.User, text, time.Time{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tr
}

func TestAppend_CapacityBound(t *testing.T) {
	s := newTestStore(t, 3, 8)

	for i := 1; i <= 5; i++ {
		s.Append("conv-1", mkTurn(t, fmt.Sprintf("t-%d", i), fmt.Sprintf("message %d", i)))
	}

	history, ok := s.History("conv-1")
	if !ok {
		t.Fatal("expected conversation to exist")
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 retained turns, got %d", len(history))
	}
	for i, want := range []string{"t-3", "t-4", "t-5"} {
		if history[i].ID() != want {
			t.Errorf("history[%d].ID() = %q, want %q", i, history[i].ID(), want)
		}
	}
}

func TestRecent(t *testing.T) {
	s := newTestStore(t, 5, 8)

	for i := 1; i <= 4; i++ {
		s.Append("conv-1", mkTurn(t, fmt.Sprintf("t-%d", i), "msg"))
	}

	recent := s.Recent("conv-1", 2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(recent))
	}
	if recent[0].ID() != "t-3" || recent[1].ID() != "t-4" {
		t.Errorf("unexpected order: %s, %s", recent[0].ID(), recent[1].ID())
	}

	all := s.Recent("conv-1", 10)
	if len(all) != 4 {
		t.Errorf("expected all 4 turns for oversized k, got %d", len(all))
	}

	if got := s.Recent("unknown", 3); got != nil {
		t.Errorf("expected nil for unknown conversation, got %v", got)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t, 3, 8)
	s.Append("conv-1", mkTurn(t, "t-1", "msg"))

	if !s.Clear("conv-1") {
		t.Error("expected Clear to report the conversation existed")
	}
	if _, ok := s.History("conv-1"); ok {
		t.Error("expected history to be gone after Clear")
	}
	if s.Clear("conv-1") {
		t.Error("expected Clear on unknown conversation to return false")
	}
}

func TestLastResults(t *testing.T) {
	s := newTestStore(t, 3, 8)

	if _, _, ok := s.LastResults("conv-1"); ok {
		t.Error("expected no last results before any retrieval")
	}

	q, err := domain.NewQuery("conv-1", "goroutines", "", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := []domain.FusedItem{
		domain.NewFusedItem("doc-1", 0.9, []domain.Kind{domain.KindKeyword}, "Doc 1", "snippet", "solr", nil, nil),
	}
	s.SetLastResults("conv-1", q, items)

	gotQ, gotItems, ok := s.LastResults("conv-1")
	if !ok {
		t.Fatal("expected last results")
	}
	if gotQ.Text() != "goroutines" {
		t.Errorf("unexpected query text: %q", gotQ.Text())
	}
	if len(gotItems) != 1 || gotItems[0].ID() != "doc-1" {
		t.Errorf("unexpected items: %v", gotItems)
	}

	s.Clear("conv-1")
	if _, _, ok := s.LastResults("conv-1"); ok {
		t.Error("expected last results to be gone after Clear")
	}
}

func TestEvictIdle(t *testing.T) {
	s := newTestStore(t, 3, 8)
	s.Append("conv-1", mkTurn(t, "t-1", "msg"))
	s.Append("conv-2", mkTurn(t, "t-2", "msg"))

	if n := s.EvictIdle(time.Now()); n != 0 {
		t.Errorf("expected no evictions for fresh conversations, got %d", n)
	}

	future := time.Now().Add(31 * time.Minute)
	if n := s.EvictIdle(future); n != 2 {
		t.Errorf("expected 2 evictions, got %d", n)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d conversations", s.Len())
	}
}

func TestMaxConversations(t *testing.T) {
	s := newTestStore(t, 3, 2)

	s.Append("conv-1", mkTurn(t, "t-1", "msg"))
	s.Append("conv-2", mkTurn(t, "t-2", "msg"))
	s.Append("conv-3", mkTurn(t, "t-3", "msg"))

	if s.Len() != 2 {
		t.Fatalf("expected 2 tracked conversations, got %d", s.Len())
	}
	if _, ok := s.History("conv-1"); ok {
		t.Error("expected the least recently used conversation to be evicted")
	}
	if _, ok := s.History("conv-3"); !ok {
		t.Error("expected the newest conversation to survive")
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := newTestStore(t, 10, 8)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				tr, _ := turn.New(fmt.Sprintf("t-%d-%d", g, i), turn.User, "msg", time.Time{}, nil)
				s.Append("conv-1", tr)
			}
		}(g)
	}
	wg.Wait()

	history, ok := s.History("conv-1")
	if !ok {
		t.Fatal("expected conversation to exist")
	}
	if len(history) != 10 {
		t.Errorf("expected exactly the capacity of turns retained, got %d", len(history))
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Capacity: 0, MaxConversations: 8}, nil, nil, zap.NewNop()); err == nil {
		t.Error("expected error for zero capacity")
	}
	if _, err := New(Config{Capacity: 10, MaxConversations: 0}, nil, nil, zap.NewNop()); err == nil {
		t.Error("expected error for zero max conversations")
	}
}
