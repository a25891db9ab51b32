package omnidex

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type solrConfig struct {
	url        string
	collection string
}

type neo4jConfig struct {
	url      string
	username string
	password string
	database string
	index    string
}

type generativeConfig struct {
	driver string // "ollama", "openai" or "anthropic"
	url    string
	apiKey string
	model  string
}

type clientConfig struct {
	solr       *solrConfig
	neo4j      *neo4jConfig
	generative *generativeConfig

	memoryCapacity int
	recentWindow   int

	resultCacheTTL time.Duration
	redisAddrs     []string
	redisPassword  string
	redisCacheTTL  time.Duration

	weightKeyword    float64
	weightVector     float64
	weightGenerative float64

	timeoutKeyword    time.Duration
	timeoutVector     time.Duration
	timeoutGenerative time.Duration

	dailyTokens   int64
	monthlyTokens int64

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithSolr configures the keyword backend: a Solr core or collection
// queried over its select handler. The URL includes the solr root,
// e.g. http://localhost:8983/solr.
func WithSolr(url, collection string) Option {
	return optionFunc(func(c *clientConfig) {
		c.solr = &solrConfig{url: url, collection: collection}
	})
}

// WithNeo4j configures the vector/graph backend: a Neo4j instance queried
// through its fulltext index over the HTTP transaction API.
// Defaults: database "neo4j", index "chunk_text" (see WithNeo4jIndex).
func WithNeo4j(url, username, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.neo4j = &neo4jConfig{
			url:      url,
			username: username,
			password: password,
			database: "neo4j",
			index:    "chunk_text",
		}
	})
}

// WithNeo4jIndex overrides the database and fulltext index queried by the
// vector/graph backend. Must follow WithNeo4j.
func WithNeo4jIndex(database, index string) Option {
	return optionFunc(func(c *clientConfig) {
		if c.neo4j == nil {
			return
		}
		c.neo4j.database = database
		c.neo4j.index = index
	})
}

// WithOllama configures a local Ollama instance as the generative backend.
func WithOllama(url, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.generative = &generativeConfig{driver: "ollama", url: url, model: model}
	})
}

// WithOpenAI configures OpenAI as the generative backend.
func WithOpenAI(apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.generative = &generativeConfig{driver: "openai", apiKey: apiKey, model: model}
	})
}

// WithAnthropic configures Anthropic as the generative backend.
func WithAnthropic(apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.generative = &generativeConfig{driver: "anthropic", apiKey: apiKey, model: model}
	})
}

// WithMemoryCapacity sets how many turns each conversation retains.
// Default: 10.
func WithMemoryCapacity(turns int) Option {
	return optionFunc(func(c *clientConfig) {
		c.memoryCapacity = turns
	})
}

// WithRecentWindow sets how many prior turns feed the generative prompt.
// Default: 5.
func WithRecentWindow(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.recentWindow = k
	})
}

// WithResultCache enables the in-process result cache for cacheable
// retrieval queries. Pass the entry TTL.
func WithResultCache(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.resultCacheTTL = ttl
	})
}

// WithRedisCache enables the shared Redis result cache and persists the
// generative token budget across restarts. Takes precedence over
// WithResultCache.
func WithRedisCache(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.redisAddrs = []string{addr}
		c.redisPassword = password
		c.redisCacheTTL = ttl
	})
}

// WithFusionWeights sets the per-backend fusion weights. All weights must
// be positive. Default: 1.0 each.
func WithFusionWeights(keyword, vectorGraph, generative float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.weightKeyword = keyword
		c.weightVector = vectorGraph
		c.weightGenerative = generative
	})
}

// WithTimeouts sets the per-backend dispatch deadlines.
// Defaults: keyword 2s, vector/graph 5s, generative 30s.
func WithTimeouts(keyword, vectorGraph, generative time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeoutKeyword = keyword
		c.timeoutVector = vectorGraph
		c.timeoutGenerative = generative
	})
}

// WithTokenBudget caps generative token consumption per day and per month.
// Zero means unlimited. Exhausting a cap makes Ask return
// ErrGenerativeQuotaExceeded for turns that need the generative backend.
func WithTokenBudget(daily, monthly int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.dailyTokens = daily
		c.monthlyTokens = monthly
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
