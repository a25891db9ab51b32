package omnidex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/db"
	dbredis "github.com/kailas-cloud/omnidex/internal/db/redis"
	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/domain/turn"
	budgetrepo "github.com/kailas-cloud/omnidex/internal/repository/budget"
	"github.com/kailas-cloud/omnidex/internal/repository/conversation"
	"github.com/kailas-cloud/omnidex/internal/repository/rescache"
	"github.com/kailas-cloud/omnidex/internal/transport/anthropic"
	"github.com/kailas-cloud/omnidex/internal/transport/neo4j"
	"github.com/kailas-cloud/omnidex/internal/transport/ollama"
	"github.com/kailas-cloud/omnidex/internal/transport/openai"
	"github.com/kailas-cloud/omnidex/internal/transport/solr"
	"github.com/kailas-cloud/omnidex/internal/usecase/analyze"
	chatuc "github.com/kailas-cloud/omnidex/internal/usecase/chat"
	"github.com/kailas-cloud/omnidex/internal/usecase/fanout"
	"github.com/kailas-cloud/omnidex/internal/usecase/fusion"
	healthuc "github.com/kailas-cloud/omnidex/internal/usecase/health"
	usageuc "github.com/kailas-cloud/omnidex/internal/usecase/usage"
)

const (
	defaultReadinessTimeout = 10 * time.Second

	defaultMemoryCapacity   = 10
	defaultRecentWindow     = 5
	defaultMaxConversations = 1024
	defaultIdleTTL          = 30 * time.Minute
	defaultJanitorInterval  = 5 * time.Minute

	defaultKeywordTimeout    = 2 * time.Second
	defaultVectorTimeout     = 5 * time.Second
	defaultGenerativeTimeout = 30 * time.Second

	defaultMaxTokens = 1024

	budgetDailyTTL = 48 * time.Hour
	budgetMonthTTL = 62 * 24 * time.Hour
)

// Внутренние интерфейсы для подмены в тестах.
type chatUseCase interface {
	HandleTurn(ctx context.Context, q domain.Query) (domain.FusedResult, error)
	Search(ctx context.Context, q domain.Query) (domain.FusedResult, error)
	History(conversationID string) ([]turn.Turn, error)
	Forget(conversationID string) error
}

// Client is the omnidex SDK entry point.
type Client struct {
	chatSvc   chatUseCase
	healthSvc healthUseCase
	usageSvc  usageUseCase
	store     db.Store
	cancel    context.CancelFunc
	obs       *observer
}

// New creates an omnidex Client and starts the conversation janitor.
// The provided context bounds the Redis readiness check when WithRedisCache
// is used.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		memoryCapacity:    defaultMemoryCapacity,
		recentWindow:      defaultRecentWindow,
		weightKeyword:     1.0,
		weightVector:      1.0,
		weightGenerative:  1.0,
		timeoutKeyword:    defaultKeywordTimeout,
		timeoutVector:     defaultVectorTimeout,
		timeoutGenerative: defaultGenerativeTimeout,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.solr == nil && cfg.neo4j == nil {
		return nil, errors.New("omnidex: at least one retrieval backend required (use WithSolr or WithNeo4j)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var store db.Store
	if len(cfg.redisAddrs) > 0 {
		s, err := dbredis.NewStore(dbredis.Config{
			Addrs:    cfg.redisAddrs,
			Password: cfg.redisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("omnidex: create redis store: %w", err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("omnidex: redis not ready: %w", err)
		}
		store = s
	}

	c, err := wireClient(ctx, store, cfg, obs)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	return c, nil
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig, obs *observer) (*Client, error) {
	// Внутренние сервисы наблюдаются через observer, поэтому zap молчит.
	zlog := zap.NewNop()

	adapters, components := buildBackends(cfg, zlog)

	executor := fanout.New(adapters, fanout.Config{
		Timeouts: map[domain.Kind]time.Duration{
			domain.KindKeyword:     cfg.timeoutKeyword,
			domain.KindVectorGraph: cfg.timeoutVector,
			domain.KindGenerative:  cfg.timeoutGenerative,
		},
	}, zlog)

	fuser, err := fusion.NewService(fusion.Config{
		Strategies: map[domain.Kind]fusion.Strategy{
			domain.KindKeyword:     fusion.StrategyMinMax,
			domain.KindVectorGraph: fusion.StrategyClamp,
			domain.KindGenerative:  fusion.StrategyClamp,
		},
		Weights: map[domain.Kind]float64{
			domain.KindKeyword:     cfg.weightKeyword,
			domain.KindVectorGraph: cfg.weightVector,
			domain.KindGenerative:  cfg.weightGenerative,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("omnidex: %w", err)
	}

	memory, err := conversation.New(conversation.Config{
		Capacity:         cfg.memoryCapacity,
		MaxConversations: defaultMaxConversations,
		IdleTTL:          defaultIdleTTL,
		JanitorInterval:  defaultJanitorInterval,
	}, nil, nil, zlog)
	if err != nil {
		return nil, fmt.Errorf("omnidex: %w", err)
	}

	var cache chatuc.ResultCache = rescache.Nop{}
	switch {
	case store != nil && cfg.redisCacheTTL > 0:
		cache = rescache.NewRedis(store, cfg.redisCacheTTL, nil, zlog)
	case cfg.resultCacheTTL > 0:
		rc, err := rescache.NewRistretto(cfg.resultCacheTTL, nil)
		if err != nil {
			return nil, fmt.Errorf("omnidex: create result cache: %w", err)
		}
		cache = rc
	}

	var budget chatuc.Budget
	var reader usageuc.TrackerReader
	if cfg.generative != nil {
		tracker := usageuc.NewTracker(
			cfg.generative.driver, cfg.dailyTokens, cfg.monthlyTokens,
			usageuc.ActionReject, zlog,
		)
		if store != nil {
			tracker = tracker.WithStore(ctx, budgetrepo.New(store, budgetDailyTTL, budgetMonthTTL))
		}
		budget = tracker
		reader = tracker
	}

	chatSvc := chatuc.New(
		analyze.NewService(), executor, fuser, memory, cache, budget,
		chatuc.Config{RecentWindow: cfg.recentWindow, MaxTokens: defaultMaxTokens},
		zlog,
	)

	if store != nil {
		components = append(components, healthuc.Component{
			Name:    "cache",
			Checker: storeChecker{store: store},
		})
	}

	runCtx, cancel := context.WithCancel(context.Background())
	go memory.Run(runCtx)

	return &Client{
		chatSvc:   chatSvc,
		healthSvc: healthuc.New(0, components...),
		usageSvc:  usageuc.New(reader),
		store:     store,
		cancel:    cancel,
		obs:       obs,
	}, nil
}

func buildBackends(cfg *clientConfig, zlog *zap.Logger) ([]domain.Adapter, []healthuc.Component) {
	var adapters []domain.Adapter
	var components []healthuc.Component

	if cfg.solr != nil {
		a := solr.New(&solr.Config{
			URL:        cfg.solr.url,
			Collection: cfg.solr.collection,
			Logger:     zlog,
		})
		adapters = append(adapters, a)
		components = append(components, healthuc.Component{Name: "solr", Critical: true, Checker: a})
	}

	if cfg.neo4j != nil {
		a := neo4j.New(&neo4j.Config{
			URL:      cfg.neo4j.url,
			Database: cfg.neo4j.database,
			Username: cfg.neo4j.username,
			Password: cfg.neo4j.password,
			Index:    cfg.neo4j.index,
			Logger:   zlog,
		})
		adapters = append(adapters, a)
		components = append(components, healthuc.Component{Name: "neo4j", Critical: true, Checker: a})
	}

	if g := cfg.generative; g != nil {
		switch g.driver {
		case "ollama":
			a := ollama.New(&ollama.Config{URL: g.url, Model: g.model, Logger: zlog})
			adapters = append(adapters, a)
			components = append(components, healthuc.Component{Name: "ollama", Checker: a})
		case "openai":
			a := openai.NewGenerator(&openai.Config{APIKey: g.apiKey, Model: g.model, Logger: zlog})
			adapters = append(adapters, a)
			components = append(components, healthuc.Component{Name: "openai", Checker: a})
		case "anthropic":
			a := anthropic.New(&anthropic.Config{APIKey: g.apiKey, Model: g.model, Logger: zlog})
			adapters = append(adapters, a)
			components = append(components, healthuc.Component{Name: "anthropic", Checker: a})
		}
	}

	return adapters, components
}

// storeChecker adapts the key-value store ping to the health contract.
type storeChecker struct {
	store db.Store
}

func (s storeChecker) HealthCheck(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Ask runs one conversational turn: classify, retrieve, fuse, remember.
// An empty conversationID starts a new conversation; the returned Result
// carries the ID to pass to follow-up calls.
func (c *Client) Ask(ctx context.Context, conversationID, text string) (_ Result, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ask", start, err) }()

	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	q, err := domain.NewQuery(conversationID, text, "", 0)
	if err != nil {
		return Result{}, err
	}

	res, err := c.chatSvc.HandleTurn(ctx, q)
	if err != nil {
		return Result{}, err
	}
	return toResult(conversationID, res), nil
}

// Search runs a stateless retrieval query: command and conversational
// routing is bypassed and nothing is remembered. A non-positive limit
// falls back to the default.
func (c *Client) Search(ctx context.Context, text string, limit int) (_ Result, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	// Поиск память не ведёт, идентификатор беседы одноразовый.
	q, err := domain.NewQuery(uuid.NewString(), text, "", limit)
	if err != nil {
		return Result{}, err
	}

	res, err := c.chatSvc.Search(ctx, q)
	if err != nil {
		return Result{}, err
	}
	return toResult("", res), nil
}

// History returns the dialogue turns of a conversation, oldest first.
// Returns ErrConversationNotFound for unknown or expired conversations.
func (c *Client) History(ctx context.Context, conversationID string) (_ []Turn, err error) {
	start := time.Now()
	defer func() { c.obs.observe("history", start, err) }()

	if err = ctx.Err(); err != nil {
		return nil, err
	}
	turns, err := c.chatSvc.History(conversationID)
	if err != nil {
		return nil, err
	}
	return toTurns(turns), nil
}

// ClearConversation removes a conversation and its retained results.
// Returns ErrConversationNotFound for unknown or expired conversations.
func (c *Client) ClearConversation(ctx context.Context, conversationID string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("clear_conversation", start, err) }()

	if err = ctx.Err(); err != nil {
		return err
	}
	return c.chatSvc.Forget(conversationID)
}

// Close stops the conversation janitor and releases the cache connection.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.store != nil {
		c.store.Close()
	}
}
