package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/domain/intent"
	"github.com/kailas-cloud/omnidex/internal/domain/turn"
	"github.com/kailas-cloud/omnidex/internal/repository/rescache"
	"github.com/kailas-cloud/omnidex/internal/usecase/analyze"
)

const defaultOverallTimeout = 30 * time.Second

const helpText = `Available commands: "refresh" re-runs the last query against live backends, ` +
	`"clear" forgets this conversation, "expand" shows more results from the last query, ` +
	`"show only <term>" filters the last results, "help" prints this message. ` +
	`Anything else is treated as a query.`

// Config carries orchestration-level settings.
type Config struct {
	// OverallTimeout is the ceiling for one turn regardless of how the
	// per-backend deadlines stack up.
	OverallTimeout time.Duration
	// RecentWindow is how many prior turns feed the generative prompt.
	RecentWindow int
	// MaxTokens caps each generative completion.
	MaxTokens int
}

// Service is the orchestration facade: one entry point per user turn that
// classifies, dispatches, fuses, and remembers.
type Service struct {
	analyzer Analyzer
	exec     Dispatcher
	fuser    Fuser
	memory   Memory
	cache    ResultCache
	budget   Budget
	overall  time.Duration
	window   int
	tokens   int
	logger   *zap.Logger
}

// New creates the chat service. budget can be nil (no generative budget).
func New(
	analyzer Analyzer, exec Dispatcher, fuser Fuser,
	memory Memory, cache ResultCache, budget Budget,
	cfg Config, logger *zap.Logger,
) *Service {
	overall := cfg.OverallTimeout
	if overall <= 0 {
		overall = defaultOverallTimeout
	}
	return &Service{
		analyzer: analyzer,
		exec:     exec,
		fuser:    fuser,
		memory:   memory,
		cache:    cache,
		budget:   budget,
		overall:  overall,
		window:   cfg.RecentWindow,
		tokens:   cfg.MaxTokens,
		logger:   logger,
	}
}

// HandleTurn processes one conversational turn end to end.
func (s *Service) HandleTurn(ctx context.Context, q domain.Query) (domain.FusedResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.overall)
	defer cancel()
	start := time.Now()

	a := s.analyzer.Analyze(q)

	var res domain.FusedResult
	var err error
	if a.Intent == intent.Command {
		res, err = s.runCommand(ctx, q, a.Command)
	} else {
		res, err = s.orchestrate(ctx, q, a, true)
	}
	if err != nil {
		// A fully failed turn still belongs to the dialogue record, but
		// there is no assistant answer to pair with it.
		if errors.Is(err, domain.ErrAllBackendsFailed) {
			s.rememberUser(q)
		}
		return domain.FusedResult{}, err
	}

	res.Intent = a.Intent
	res.Fallback = a.Fallback
	res.Took = time.Since(start)

	// The clear command already wiped the session; remembering the clear
	// itself would immediately repopulate it.
	if a.Command.Name != analyze.CmdClear {
		s.remember(q, res)
	}
	return res, nil
}

// Search is the stateless retrieval operation: no conversation memory, no
// generative phase. An explicit hint overrides classification; a text that
// parses as a command is retrieved literally instead.
func (s *Service) Search(ctx context.Context, q domain.Query) (domain.FusedResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.overall)
	defer cancel()
	start := time.Now()

	a := s.analyzer.Analyze(q)
	if a.Intent == intent.Command || a.Intent == intent.Conversational {
		hinted, err := domain.NewQuery(q.ConversationID(), q.Text(), intent.FactualLookup, q.Limit())
		if err != nil {
			return domain.FusedResult{}, err
		}
		a = s.analyzer.Analyze(hinted)
	}
	a.Generative = false

	res, err := s.orchestrate(ctx, q, a, false)
	if err != nil {
		return domain.FusedResult{}, err
	}
	res.Intent = a.Intent
	res.Took = time.Since(start)
	return res, nil
}

// History returns the full dialogue of a conversation.
func (s *Service) History(conversationID string) ([]turn.Turn, error) {
	turns, ok := s.memory.History(conversationID)
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return turns, nil
}

// Forget removes a conversation and its retained results.
func (s *Service) Forget(conversationID string) error {
	if !s.memory.Clear(conversationID) {
		return domain.ErrConversationNotFound
	}
	return nil
}

// orchestrate runs the two-phase dispatch: retrieval wave, then (for
// conversational turns) the generative call fed with fused snippets. The
// record flag controls whether the conversation retains the result set.
func (s *Service) orchestrate(
	ctx context.Context, q domain.Query, a analyze.Analysis, record bool,
) (domain.FusedResult, error) {
	var key string
	if a.Intent.Cacheable() {
		key = rescache.Key(a.Intent, q.Text(), q.Limit())
		if cached, ok := s.cache.Get(ctx, key); ok {
			if record {
				s.memory.SetLastResults(q.ConversationID(), q, cached.Items)
			}
			return page(cached, q.Limit()), nil
		}
	}

	results, err := s.exec.Dispatch(ctx, a.SubQueries)
	if err != nil {
		return domain.FusedResult{}, err
	}

	if a.Generative {
		results = s.withGenerative(ctx, q, results)
	}

	res := s.fuser.Fuse(results)

	if record {
		// Retain the full ranked list so expand and show-only never have
		// to touch a backend again.
		s.memory.SetLastResults(q.ConversationID(), q, res.Items)
	}
	if key != "" && !res.Partial {
		s.cache.Put(ctx, key, res)
	}
	return page(res, q.Limit()), nil
}

// withGenerative appends the generative contribution to the retrieval
// results. A failed or rejected generative call degrades the turn to
// retrieval-only; it never fails it.
func (s *Service) withGenerative(
	ctx context.Context, q domain.Query, retrieval []domain.BackendResult,
) []domain.BackendResult {
	if s.budget != nil {
		if err := s.budget.Check(ctx); err != nil {
			s.logger.Warn("Generative call skipped",
				zap.String("conversation_id", q.ConversationID()),
				zap.Error(err),
			)
			return append(retrieval, domain.BackendResult{
				Backend: domain.KindGenerative,
				Name:    string(domain.KindGenerative),
				Status:  domain.StatusSkipped,
				Err:     err,
			})
		}
	}

	interim := s.fuser.Fuse(retrieval)
	sq := domain.SubQuery{
		Kind:      domain.KindGenerative,
		Prompt:    buildPrompt(q, s.memory.Recent(q.ConversationID(), s.window), interim.Items),
		Context:   snippets(interim.Items, maxPromptSnippets),
		Limit:     q.Limit(),
		MaxTokens: s.tokens,
	}

	// Dispatch errors here mean only that this single call failed; the
	// retrieval answer still stands.
	genResults, _ := s.exec.Dispatch(ctx, []domain.SubQuery{sq})
	if len(genResults) != 1 {
		return retrieval
	}

	gen := genResults[0]
	if gen.OK() && s.budget != nil && gen.Tokens > 0 {
		s.budget.Record(int64(gen.Tokens))
	}
	return append(retrieval, gen)
}

// runCommand executes a local action. Only refresh touches the backends.
// Local actions are deterministic and report full confidence.
func (s *Service) runCommand(ctx context.Context, q domain.Query, cmd analyze.Command) (domain.FusedResult, error) {
	id := q.ConversationID()
	res := domain.FusedResult{Action: cmd.Name, Confidence: 1}

	switch cmd.Name {
	case analyze.CmdHelp:
		res.Narrative = helpText

	case analyze.CmdClear:
		s.memory.Clear(id)
		res.Narrative = "Conversation cleared."

	case analyze.CmdRefresh:
		last, _, ok := s.memory.LastResults(id)
		if !ok {
			res.Narrative = "Nothing to refresh yet."
			return res, nil
		}
		a := s.analyzer.Analyze(last)
		if a.Intent.Cacheable() {
			s.cache.Invalidate(ctx, rescache.Key(a.Intent, last.Text(), last.Limit()))
		}
		fresh, err := s.orchestrate(ctx, last, a, true)
		if err != nil {
			return domain.FusedResult{}, err
		}
		fresh.Action = cmd.Name
		return fresh, nil

	case analyze.CmdExpand:
		last, items, ok := s.memory.LastResults(id)
		if !ok || len(items) <= last.Limit() {
			res.Narrative = "No additional results."
			return res, nil
		}
		// Advance the retained cursor past the page already delivered.
		tail := items[last.Limit():]
		s.memory.SetLastResults(id, last, tail)
		res.Items = pageItems(tail, last.Limit())

	case analyze.CmdShowOnly:
		last, items, ok := s.memory.LastResults(id)
		if !ok || len(items) == 0 {
			res.Narrative = "No results to filter."
			return res, nil
		}
		matched := filterItems(items, cmd.Arg)
		if len(matched) == 0 {
			res.Narrative = fmt.Sprintf("No results match %q.", cmd.Arg)
			return res, nil
		}
		res.Items = pageItems(matched, last.Limit())

	default:
		res.Narrative = helpText
	}
	return res, nil
}

// remember appends the user and assistant turns for a handled query.
func (s *Service) remember(q domain.Query, res domain.FusedResult) {
	if !s.rememberUser(q) {
		return
	}

	summary := res.Narrative
	if summary == "" {
		summary = fmt.Sprintf("%d results", len(res.Items))
	}
	ids := make([]string, 0, len(res.Items))
	for i := range res.Items {
		ids = append(ids, res.Items[i].ID())
	}
	assistantTurn, err := turn.New(uuid.NewString(), turn.Assistant, summary, time.Time{}, ids)
	if err != nil {
		return
	}
	s.memory.Append(q.ConversationID(), assistantTurn)
}

func (s *Service) rememberUser(q domain.Query) bool {
	userTurn, err := turn.New(uuid.NewString(), turn.User, q.Text(), time.Time{}, nil)
	if err != nil {
		return false
	}
	s.memory.Append(q.ConversationID(), userTurn)
	return true
}

// filterItems keeps entries whose title or snippet contains the term,
// case-insensitive.
func filterItems(items []domain.FusedItem, term string) []domain.FusedItem {
	needle := strings.ToLower(term)
	var out []domain.FusedItem
	for i := range items {
		title := strings.ToLower(items[i].Title())
		snippet := strings.ToLower(items[i].Snippet())
		if strings.Contains(title, needle) || strings.Contains(snippet, needle) {
			out = append(out, items[i])
		}
	}
	return out
}

func page(res domain.FusedResult, limit int) domain.FusedResult {
	res.Items = pageItems(res.Items, limit)
	return res
}

func pageItems(items []domain.FusedItem, limit int) []domain.FusedItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
