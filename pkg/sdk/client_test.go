package omnidex

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew_NoBackend(t *testing.T) {
	_, err := New(context.Background())
	if err == nil {
		t.Fatal("expected error when no retrieval backend configured")
	}
}

func TestNew_SolrOnly(t *testing.T) {
	// Без Redis конструктор ничего не дозванивается.
	c, err := New(context.Background(),
		WithSolr("http://localhost:8983/solr", "documents"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()

	report := c.Usage(context.Background(), PeriodMonth)
	if report.Driver != "" {
		t.Errorf("driver = %q, want empty without generative backend", report.Driver)
	}
	if report.Metrics.Tokens != 0 {
		t.Errorf("tokens = %d, want 0", report.Metrics.Tokens)
	}
}

func TestNew_FullStack(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(context.Background(),
		WithSolr("http://localhost:8983/solr", "documents"),
		WithNeo4j("http://localhost:7474", "neo4j", "secret"),
		WithOllama("http://localhost:11434", "llama3.2"),
		WithTokenBudget(500, 1000),
		WithResultCache(5*time.Minute),
		WithMemoryCapacity(20),
		WithRecentWindow(3),
		WithLogger(slog.Default()),
		WithPrometheus(reg),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()

	month := c.Usage(context.Background(), PeriodMonth)
	if month.Driver != "ollama" {
		t.Errorf("driver = %q, want ollama", month.Driver)
	}
	if month.Budget.TokensLimit != 1000 {
		t.Errorf("monthly limit = %d, want 1000", month.Budget.TokensLimit)
	}
	if month.Budget.IsExhausted {
		t.Error("fresh budget must not be exhausted")
	}

	day := c.Usage(context.Background(), PeriodDay)
	if day.Budget.TokensLimit != 500 {
		t.Errorf("daily limit = %d, want 500", day.Budget.TokensLimit)
	}
}

func TestNew_InvalidFusionWeights(t *testing.T) {
	_, err := New(context.Background(),
		WithSolr("http://localhost:8983/solr", "documents"),
		WithFusionWeights(0, 1, 1),
	)
	if err == nil {
		t.Fatal("expected error for non-positive fusion weight")
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &clientConfig{}

	WithSolr("http://localhost:8983/solr", "docs").apply(cfg)
	if cfg.solr == nil || cfg.solr.url != "http://localhost:8983/solr" {
		t.Fatalf("solr config not applied: %+v", cfg.solr)
	}
	if cfg.solr.collection != "docs" {
		t.Errorf("collection = %q, want docs", cfg.solr.collection)
	}

	WithNeo4j("http://localhost:7474", "neo4j", "secret").apply(cfg)
	if cfg.neo4j == nil || cfg.neo4j.username != "neo4j" {
		t.Fatalf("neo4j config not applied: %+v", cfg.neo4j)
	}
	if cfg.neo4j.database != "neo4j" || cfg.neo4j.index != "chunk_text" {
		t.Errorf("neo4j defaults = (%q, %q), want (neo4j, chunk_text)",
			cfg.neo4j.database, cfg.neo4j.index)
	}

	WithNeo4jIndex("graphdb", "entity_text").apply(cfg)
	if cfg.neo4j.database != "graphdb" || cfg.neo4j.index != "entity_text" {
		t.Errorf("neo4j override = (%q, %q), want (graphdb, entity_text)",
			cfg.neo4j.database, cfg.neo4j.index)
	}

	cfg2 := &clientConfig{}
	WithNeo4jIndex("graphdb", "entity_text").apply(cfg2)
	if cfg2.neo4j != nil {
		t.Error("WithNeo4jIndex without WithNeo4j must be a no-op")
	}

	WithOllama("http://localhost:11434", "llama3.2").apply(cfg2)
	if cfg2.generative == nil || cfg2.generative.driver != "ollama" {
		t.Fatalf("generative config not applied: %+v", cfg2.generative)
	}
	WithOpenAI("sk-key", "gpt-4o-mini").apply(cfg2)
	if cfg2.generative.driver != "openai" || cfg2.generative.apiKey != "sk-key" {
		t.Errorf("openai config = %+v", cfg2.generative)
	}
	WithAnthropic("sk-ant", "claude-sonnet-4-5").apply(cfg2)
	if cfg2.generative.driver != "anthropic" || cfg2.generative.model != "claude-sonnet-4-5" {
		t.Errorf("anthropic config = %+v", cfg2.generative)
	}

	cfg3 := &clientConfig{}
	WithMemoryCapacity(50).apply(cfg3)
	if cfg3.memoryCapacity != 50 {
		t.Errorf("memoryCapacity = %d, want 50", cfg3.memoryCapacity)
	}
	WithRecentWindow(7).apply(cfg3)
	if cfg3.recentWindow != 7 {
		t.Errorf("recentWindow = %d, want 7", cfg3.recentWindow)
	}
	WithResultCache(time.Minute).apply(cfg3)
	if cfg3.resultCacheTTL != time.Minute {
		t.Errorf("resultCacheTTL = %v, want 1m", cfg3.resultCacheTTL)
	}
	WithRedisCache("localhost:6379", "pass", 2*time.Minute).apply(cfg3)
	if len(cfg3.redisAddrs) != 1 || cfg3.redisAddrs[0] != "localhost:6379" {
		t.Errorf("redisAddrs = %v", cfg3.redisAddrs)
	}
	if cfg3.redisPassword != "pass" || cfg3.redisCacheTTL != 2*time.Minute {
		t.Errorf("redis cache = (%q, %v)", cfg3.redisPassword, cfg3.redisCacheTTL)
	}

	WithFusionWeights(1.5, 1.2, 0.8).apply(cfg3)
	if cfg3.weightKeyword != 1.5 || cfg3.weightVector != 1.2 || cfg3.weightGenerative != 0.8 {
		t.Errorf("weights = (%v, %v, %v)",
			cfg3.weightKeyword, cfg3.weightVector, cfg3.weightGenerative)
	}
	WithTimeouts(time.Second, 2*time.Second, 20*time.Second).apply(cfg3)
	if cfg3.timeoutKeyword != time.Second || cfg3.timeoutGenerative != 20*time.Second {
		t.Errorf("timeouts = (%v, %v, %v)",
			cfg3.timeoutKeyword, cfg3.timeoutVector, cfg3.timeoutGenerative)
	}
	WithTokenBudget(10_000, 200_000).apply(cfg3)
	if cfg3.dailyTokens != 10_000 || cfg3.monthlyTokens != 200_000 {
		t.Errorf("budget = (%d, %d)", cfg3.dailyTokens, cfg3.monthlyTokens)
	}

	cfg4 := &clientConfig{}
	logger := slog.Default()
	WithLogger(logger).apply(cfg4)
	if cfg4.logger != logger {
		t.Error("expected logger to be set")
	}

	cfg5 := &clientConfig{}
	reg := prometheus.NewRegistry()
	WithPrometheus(reg).apply(cfg5)
	if cfg5.metricsReg != reg {
		t.Error("expected metricsReg to be set")
	}
}

func TestClient_Close_Bare(t *testing.T) {
	// Close на клиенте без store и janitor не паникует.
	c := &Client{}
	c.Close()
}

func TestObserver_NilSafe(t *testing.T) {
	// nil observer should not panic.
	var obs *observer
	obs.observe("test", time.Now(), nil)
	obs.observe("test", time.Now(), errors.New("err"))
}

func TestObserver_WithPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}

	obs.observe("ask", time.Now().Add(-10*time.Millisecond), nil)
	obs.observe("ask", time.Now(), errors.New("fail"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected metrics to be registered")
	}

	// Verify operations counter has both ok and error.
	found := false
	for _, f := range families {
		if f.GetName() == "omnidex_sdk_operations_total" {
			found = true
			if len(f.GetMetric()) != 2 {
				t.Errorf("expected 2 metric samples, got %d",
					len(f.GetMetric()))
			}
		}
	}
	if !found {
		t.Error("omnidex_sdk_operations_total not found")
	}
}

func TestObserver_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("first newObserver: %v", err)
	}
	// Повторная регистрация переиспользует коллекторы.
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("second newObserver: %v", err)
	}
}

func TestObserver_WithLogger(t *testing.T) {
	// Проверяем что логгер не паникует при вызове.
	logger := slog.Default()
	obs, err := newObserver(logger, nil)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}
	obs.observe("ask", time.Now(), nil)
	obs.observe("ask", time.Now(), errors.New("test error"))
}
