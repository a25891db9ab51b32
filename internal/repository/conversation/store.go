package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/domain/turn"
)

// Eviction reasons reported via the evictions counter.
const (
	reasonIdle     = "idle"
	reasonCapacity = "capacity"
	reasonCleared  = "cleared"
)

// Config holds conversation store settings.
type Config struct {
	Capacity         int           // turns kept per conversation
	MaxConversations int           // bound on concurrently tracked conversations
	IdleTTL          time.Duration // conversations idle longer than this are swept
	JanitorInterval  time.Duration
}

// session holds the state of one conversation. Turns live in a fixed-size
// ring so appends and oldest-turn eviction are O(1). The per-session mutex
// serializes appends for the same conversation without blocking others.
type session struct {
	mu         sync.Mutex
	turns      []turn.Turn
	head       int // index of the oldest turn
	size       int
	lastActive time.Time

	lastQuery domain.Query
	lastItems []domain.FusedItem
	hasLast   bool
}

func (ss *session) append(t turn.Turn) {
	n := len(ss.turns)
	if ss.size < n {
		ss.turns[(ss.head+ss.size)%n] = t
		ss.size++
		return
	}
	ss.turns[ss.head] = t
	ss.head = (ss.head + 1) % n
}

// last returns up to k most recent turns in chronological order.
func (ss *session) last(k int) []turn.Turn {
	if k > ss.size {
		k = ss.size
	}
	if k <= 0 {
		return nil
	}
	out := make([]turn.Turn, 0, k)
	for i := ss.size - k; i < ss.size; i++ {
		out = append(out, ss.turns[(ss.head+i)%len(ss.turns)])
	}
	return out
}

// Store is a bounded in-process conversation memory. The session map is
// LRU-bounded; idle sessions are additionally swept by the janitor.
type Store struct {
	mu           sync.Mutex
	sessions     *lru.Cache[string, *session]
	removeReason string // set around manual removals so onEvict can label them

	capacity int
	idleTTL  time.Duration
	interval time.Duration

	active    prometheus.Gauge
	evictions *prometheus.CounterVec
	logger    *zap.Logger
}

// New creates a conversation store.
// active and evictions are nil-safe and passed explicitly.
func New(cfg Config, active prometheus.Gauge, evictions *prometheus.CounterVec, logger *zap.Logger) (*Store, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("conversation capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.MaxConversations <= 0 {
		return nil, fmt.Errorf("max conversations must be positive, got %d", cfg.MaxConversations)
	}

	s := &Store{
		capacity:  cfg.Capacity,
		idleTTL:   cfg.IdleTTL,
		interval:  cfg.JanitorInterval,
		active:    active,
		evictions: evictions,
		logger:    logger,
	}

	sessions, err := lru.NewWithEvict[string, *session](cfg.MaxConversations, s.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	s.sessions = sessions
	return s, nil
}

// onEvict runs under s.mu for every removal path.
func (s *Store) onEvict(_ string, _ *session) {
	reason := s.removeReason
	if reason == "" {
		reason = reasonCapacity
	}
	if s.evictions != nil {
		s.evictions.WithLabelValues(reason).Inc()
	}
	if s.active != nil {
		s.active.Dec()
	}
}

func (s *Store) getOrCreate(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions.Get(id); ok {
		return sess
	}
	sess := &session{turns: make([]turn.Turn, s.capacity)}
	s.sessions.Add(id, sess)
	if s.active != nil {
		s.active.Inc()
	}
	return sess
}

func (s *Store) get(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Get(id)
}

// Append adds a turn to the conversation, creating it on first use.
// The oldest turn is dropped once the per-conversation capacity is reached.
func (s *Store) Append(id string, t turn.Turn) {
	sess := s.getOrCreate(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.append(t)
	sess.lastActive = time.Now()
}

// Recent returns up to k most recent turns in chronological order.
// Returns nil for an unknown conversation.
func (s *Store) Recent(id string, k int) []turn.Turn {
	sess, ok := s.get(id)
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.last(k)
}

// History returns the full retained history of the conversation.
func (s *Store) History(id string) ([]turn.Turn, bool) {
	sess, ok := s.get(id)
	if !ok {
		return nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.last(sess.size), true
}

// SetLastResults retains the fused list of the latest retrieval so follow-up
// commands (expand, show only) can serve from it without re-dispatching.
func (s *Store) SetLastResults(id string, q domain.Query, items []domain.FusedItem) {
	sess := s.getOrCreate(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastQuery = q
	sess.lastItems = items
	sess.hasLast = true
	sess.lastActive = time.Now()
}

// LastResults returns the retained fused list of the latest retrieval.
func (s *Store) LastResults(id string) (domain.Query, []domain.FusedItem, bool) {
	sess, ok := s.get(id)
	if !ok {
		return domain.Query{}, nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.hasLast {
		return domain.Query{}, nil, false
	}
	return sess.lastQuery, sess.lastItems, true
}

// Clear drops the conversation entirely. Returns false if it was not tracked.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeReason = reasonCleared
	ok := s.sessions.Remove(id)
	s.removeReason = ""
	return ok
}

// Len returns the number of tracked conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Len()
}

// EvictIdle removes conversations idle longer than the configured TTL,
// judged against now. Returns the number of evicted conversations.
func (s *Store) EvictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for _, id := range s.sessions.Keys() {
		sess, ok := s.sessions.Peek(id)
		if !ok {
			continue
		}
		sess.mu.Lock()
		idle := now.Sub(sess.lastActive) > s.idleTTL
		sess.mu.Unlock()
		if idle {
			expired = append(expired, id)
		}
	}

	s.removeReason = reasonIdle
	for _, id := range expired {
		s.sessions.Remove(id)
	}
	s.removeReason = ""
	return len(expired)
}

// Run sweeps idle conversations until ctx is canceled.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(time.Now()); n > 0 && s.logger != nil {
				s.logger.Debug("evicted idle conversations", zap.Int("count", n))
			}
		}
	}
}
