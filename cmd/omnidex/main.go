package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/config"
	"github.com/kailas-cloud/omnidex/internal/db"
	dbRedis "github.com/kailas-cloud/omnidex/internal/db/redis"
	"github.com/kailas-cloud/omnidex/internal/domain"
	logpkg "github.com/kailas-cloud/omnidex/internal/logger"
	"github.com/kailas-cloud/omnidex/internal/metrics"
	budgetrepo "github.com/kailas-cloud/omnidex/internal/repository/budget"
	"github.com/kailas-cloud/omnidex/internal/repository/conversation"
	"github.com/kailas-cloud/omnidex/internal/repository/rescache"
	"github.com/kailas-cloud/omnidex/internal/transport/anthropic"
	chiTransport "github.com/kailas-cloud/omnidex/internal/transport/chi"
	mcpTransport "github.com/kailas-cloud/omnidex/internal/transport/mcp"
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
	"github.com/kailas-cloud/omnidex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting omnidex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.String("generative_driver", cfg.Backends.Generative.Driver),
	)

	ctx := context.Background()

	// Shared store backs the redis result cache and budget persistence.
	var store db.Store
	if cfg.Cache.Driver == "redis" {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer s.Close()

		if err := s.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		store = s
		logger.Info("Connected to cache store", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	// Register orchestrator metrics explicitly (no init())
	metrics.RegisterOrchestratorMetrics()

	adapters, components := buildBackends(cfg, logger)
	logger.Info("Backends created", zap.Int("count", len(adapters)))

	executor := fanout.New(adapters, fanout.Config{
		Timeouts: map[domain.Kind]time.Duration{
			domain.KindKeyword:     time.Duration(cfg.Backends.Keyword.TimeoutSec) * time.Second,
			domain.KindVectorGraph: time.Duration(cfg.Backends.VectorGraph.TimeoutSec) * time.Second,
			domain.KindGenerative:  time.Duration(cfg.Backends.Generative.TimeoutSec) * time.Second,
		},
		RateLimits: map[domain.Kind]float64{
			domain.KindKeyword:     cfg.Backends.Keyword.RateLimitRPS,
			domain.KindVectorGraph: cfg.Backends.VectorGraph.RateLimitRPS,
			domain.KindGenerative:  cfg.Backends.Generative.RateLimitRPS,
		},
	}, logger)

	fuser, err := fusion.NewService(fusion.Config{
		Strategies: map[domain.Kind]fusion.Strategy{
			domain.KindKeyword:     fusion.Strategy(cfg.Backends.Keyword.Normalize),
			domain.KindVectorGraph: fusion.Strategy(cfg.Backends.VectorGraph.Normalize),
			domain.KindGenerative:  fusion.Strategy(cfg.Backends.Generative.Normalize),
		},
		Weights: map[domain.Kind]float64{
			domain.KindKeyword:     cfg.Backends.Keyword.Weight,
			domain.KindVectorGraph: cfg.Backends.VectorGraph.Weight,
			domain.KindGenerative:  cfg.Backends.Generative.Weight,
		},
		Mode: cfg.Orchestrator.Fusion,
		RRFK: cfg.Orchestrator.RRFK,
	})
	if err != nil {
		logger.Fatal("Failed to create fusion service", zap.Error(err))
	}

	memory, err := conversation.New(conversation.Config{
		Capacity:         cfg.Memory.Capacity,
		MaxConversations: cfg.Memory.MaxConversations,
		IdleTTL:          time.Duration(cfg.Memory.IdleTTLMin) * time.Minute,
		JanitorInterval:  time.Duration(cfg.Memory.JanitorIntervalMin) * time.Minute,
	}, metrics.ConversationsActive, metrics.ConversationEvictionsTotal, logger)
	if err != nil {
		logger.Fatal("Failed to create conversation store", zap.Error(err))
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go memory.Run(runCtx)

	var cache chatuc.ResultCache = rescache.Nop{}
	cacheTTL := time.Duration(cfg.Cache.TTLSec) * time.Second
	switch cfg.Cache.Driver {
	case "ristretto":
		rc, err := rescache.NewRistretto(cacheTTL, metrics.ResultCacheTotal)
		if err != nil {
			logger.Fatal("Failed to create result cache", zap.Error(err))
		}
		cache = rc
	case "redis":
		cache = rescache.NewRedis(store, cacheTTL, metrics.ResultCacheTotal, logger)
	}

	// Single tracker shared between the budget gate and usage reports.
	var tracker *usageuc.Tracker
	genCfg := cfg.Backends.Generative
	if genCfg.Driver != "off" {
		action := usageuc.ActionWarn
		if genCfg.Budget.Action == "reject" {
			action = usageuc.ActionReject
		}
		tracker = usageuc.NewTracker(
			genCfg.Driver, genCfg.Budget.DailyTokenLimit, genCfg.Budget.MonthlyTokenLimit,
			action, logger,
		)
		if store != nil {
			// Persisted counters survive restarts, so an exhausted budget stays exhausted.
			tracker = tracker.WithStore(ctx, budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour))
		}
	}

	// Pass nil interface (not typed nil pointer!) if the budget is not configured.
	// Go gotcha: (*Tracker)(nil) wrapped in Budget != nil.
	var budget chatuc.Budget
	var trackerReader usageuc.TrackerReader
	if tracker != nil {
		budget = tracker
		trackerReader = tracker
	}
	usageSvc := usageuc.New(trackerReader)

	if store != nil {
		components = append(components, healthuc.Component{
			Name:    "cache",
			Checker: storePinger{store: store},
		})
	}
	healthSvc := healthuc.New(0, components...)

	chatSvc := chatuc.New(
		analyze.NewService(), executor, fuser, memory, cache, budget,
		chatuc.Config{
			OverallTimeout: time.Duration(cfg.Orchestrator.OverallTimeoutSec) * time.Second,
			RecentWindow:   cfg.Memory.RecentWindow,
			MaxTokens:      genCfg.MaxTokens,
		},
		logger,
	)

	// Create chi server
	server := chiTransport.NewServer(chatSvc, usageSvc, healthSvc, logger).
		WithDefaultLimit(cfg.Orchestrator.ResultLimit)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

	// MCP server shares the chat service over stdio.
	if cfg.MCP.Enabled {
		stdioSrv := mcpserver.NewStdioServer(mcpTransport.NewServer(chatSvc, version.Version))
		go func() {
			if err := stdioSrv.Listen(runCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", zap.Error(err))
			}
		}()
		logger.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildBackends assembles the adapters and their health probes. Retrieval
// backends are critical; the generative backend only degrades health.
func buildBackends(cfg config.Config, logger *zap.Logger) ([]domain.Adapter, []healthuc.Component) {
	var adapters []domain.Adapter
	var components []healthuc.Component

	solrAdapter := solr.New(&solr.Config{
		URL:        cfg.Backends.Keyword.URL,
		Collection: cfg.Backends.Keyword.Collection,
		Filters:    cfg.Backends.Keyword.Filters,
		Logger:     logger,
	})
	adapters = append(adapters, solrAdapter)
	components = append(components, healthuc.Component{Name: "solr", Critical: true, Checker: solrAdapter})

	neoAdapter := neo4j.New(&neo4j.Config{
		URL:          cfg.Backends.VectorGraph.URL,
		Database:     cfg.Backends.VectorGraph.Database,
		Username:     cfg.Backends.VectorGraph.Username,
		Password:     cfg.Backends.VectorGraph.Password,
		Index:        cfg.Backends.VectorGraph.Index,
		RelatedLimit: cfg.Backends.VectorGraph.RelatedLimit,
		Logger:       logger,
	})
	adapters = append(adapters, neoAdapter)
	components = append(components, healthuc.Component{Name: "neo4j", Critical: true, Checker: neoAdapter})

	gen := cfg.Backends.Generative
	switch gen.Driver {
	case "ollama":
		a := ollama.New(&ollama.Config{
			URL:         gen.URL,
			Model:       gen.Model,
			Temperature: gen.Temperature,
			Logger:      logger,
		})
		adapters = append(adapters, a)
		components = append(components, healthuc.Component{Name: "ollama", Checker: a})
	case "openai":
		a := openai.NewGenerator(&openai.Config{
			APIKey:      gen.APIKey,
			BaseURL:     gen.URL,
			Model:       gen.Model,
			Temperature: gen.Temperature,
			Logger:      logger,
		})
		adapters = append(adapters, a)
		components = append(components, healthuc.Component{Name: "openai", Checker: a})
	case "anthropic":
		a := anthropic.New(&anthropic.Config{
			APIKey:  gen.APIKey,
			BaseURL: gen.URL,
			Model:   gen.Model,
			Logger:  logger,
		})
		adapters = append(adapters, a)
		components = append(components, healthuc.Component{Name: "anthropic", Checker: a})
	}

	return adapters, components
}

// storePinger adapts the key-value store ping to the health contract.
type storePinger struct {
	store db.Store
}

func (s storePinger) HealthCheck(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
