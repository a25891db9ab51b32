package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the omnidex API configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Auth         AuthConfig         `yaml:"auth"`
	Memory       MemoryConfig       `yaml:"memory"`
	Cache        CacheConfig        `yaml:"cache"`
	Backends     BackendsConfig     `yaml:"backends"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	MCP          MCPConfig          `yaml:"mcp"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // must exceed orchestrator.overall_timeout_sec
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// MemoryConfig holds conversation memory settings.
type MemoryConfig struct {
	Capacity           int `yaml:"capacity"`      // turns kept per conversation
	RecentWindow       int `yaml:"recent_window"` // turns fed to the generative backend
	IdleTTLMin         int `yaml:"idle_ttl_min"`
	JanitorIntervalMin int `yaml:"janitor_interval_min"`
	MaxConversations   int `yaml:"max_conversations"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // ristretto, redis, off (default: ristretto)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLSec           int      `yaml:"ttl_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// BackendsConfig holds settings for the three backend families.
type BackendsConfig struct {
	Keyword     KeywordConfig     `yaml:"keyword"`
	VectorGraph VectorGraphConfig `yaml:"vector_graph"`
	Generative  GenerativeConfig  `yaml:"generative"`
}

// KeywordConfig holds keyword (Solr) backend settings.
type KeywordConfig struct {
	URL          string            `yaml:"url"`
	Collection   string            `yaml:"collection"`
	Filters      map[string]string `yaml:"filters"` // static fq clauses applied to every search
	TimeoutSec   int               `yaml:"timeout_sec"`
	Weight       float64           `yaml:"weight"`
	Normalize    string            `yaml:"normalize"` // minmax, clamp, affine, zscore
	RateLimitRPS float64           `yaml:"rate_limit_rps"` // 0 = unlimited
}

// VectorGraphConfig holds vector/graph (Neo4j) backend settings.
type VectorGraphConfig struct {
	URL          string  `yaml:"url"`
	Database     string  `yaml:"database"`
	Username     string  `yaml:"username"`
	Password     string  `yaml:"password"`
	Index        string  `yaml:"index"` // fulltext index queried via db.index.fulltext.queryNodes
	RelatedLimit int     `yaml:"related_limit"`
	TimeoutSec   int     `yaml:"timeout_sec"`
	Weight       float64 `yaml:"weight"`
	Normalize    string  `yaml:"normalize"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// GenerativeConfig holds generative backend settings.
type GenerativeConfig struct {
	Driver       string       `yaml:"driver"` // ollama, openai, anthropic, off (default: ollama)
	URL          string       `yaml:"url"`
	APIKey       string       `yaml:"api_key"`
	Model        string       `yaml:"model"`
	TimeoutSec   int          `yaml:"timeout_sec"`
	MaxTokens    int          `yaml:"max_tokens"`
	Temperature  float64      `yaml:"temperature"`
	Weight       float64      `yaml:"weight"`
	Normalize    string       `yaml:"normalize"`
	RateLimitRPS float64      `yaml:"rate_limit_rps"`
	Budget       BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds generative token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// OrchestratorConfig holds fan-out and fusion settings.
type OrchestratorConfig struct {
	OverallTimeoutSec int    `yaml:"overall_timeout_sec"`
	ResultLimit       int    `yaml:"result_limit"`
	Fusion            string `yaml:"fusion"` // weighted (default), rrf
	RRFK              int    `yaml:"rrf_k"`
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Orchestrator.OverallTimeoutSec <= 0 {
		c.Orchestrator.OverallTimeoutSec = 30
	}
	if c.Orchestrator.ResultLimit <= 0 {
		c.Orchestrator.ResultLimit = 20
	}
	if c.Orchestrator.Fusion == "" {
		c.Orchestrator.Fusion = "weighted"
	}
	if c.Orchestrator.RRFK <= 0 {
		c.Orchestrator.RRFK = 60
	}

	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = c.Orchestrator.OverallTimeoutSec + 5
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Memory.Capacity <= 0 {
		c.Memory.Capacity = 10
	}
	if c.Memory.RecentWindow <= 0 {
		c.Memory.RecentWindow = 5
	}
	if c.Memory.IdleTTLMin <= 0 {
		c.Memory.IdleTTLMin = 30
	}
	if c.Memory.JanitorIntervalMin <= 0 {
		c.Memory.JanitorIntervalMin = 5
	}
	if c.Memory.MaxConversations <= 0 {
		c.Memory.MaxConversations = 1024
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "ristretto"
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 300
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}

	if c.Backends.Keyword.Collection == "" {
		c.Backends.Keyword.Collection = "documents"
	}
	if c.Backends.Keyword.TimeoutSec <= 0 {
		c.Backends.Keyword.TimeoutSec = 2
	}
	if c.Backends.Keyword.Weight <= 0 {
		c.Backends.Keyword.Weight = 1.0
	}
	if c.Backends.Keyword.Normalize == "" {
		c.Backends.Keyword.Normalize = "minmax"
	}

	if c.Backends.VectorGraph.Database == "" {
		c.Backends.VectorGraph.Database = "neo4j"
	}
	if c.Backends.VectorGraph.Index == "" {
		c.Backends.VectorGraph.Index = "chunk_text"
	}
	if c.Backends.VectorGraph.RelatedLimit <= 0 {
		c.Backends.VectorGraph.RelatedLimit = 5
	}
	if c.Backends.VectorGraph.TimeoutSec <= 0 {
		c.Backends.VectorGraph.TimeoutSec = 5
	}
	if c.Backends.VectorGraph.Weight <= 0 {
		c.Backends.VectorGraph.Weight = 1.0
	}
	if c.Backends.VectorGraph.Normalize == "" {
		c.Backends.VectorGraph.Normalize = "clamp"
	}

	if c.Backends.Generative.Driver == "" {
		c.Backends.Generative.Driver = "ollama"
	}
	if c.Backends.Generative.TimeoutSec <= 0 {
		c.Backends.Generative.TimeoutSec = 30
	}
	if c.Backends.Generative.MaxTokens <= 0 {
		c.Backends.Generative.MaxTokens = 1024
	}
	if c.Backends.Generative.Weight <= 0 {
		c.Backends.Generative.Weight = 1.0
	}
	if c.Backends.Generative.Normalize == "" {
		c.Backends.Generative.Normalize = "clamp"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.WriteTimeoutSec <= c.Orchestrator.OverallTimeoutSec {
		return fmt.Errorf(
			"http.write_timeout_sec (%d) must exceed orchestrator.overall_timeout_sec (%d)",
			c.HTTP.WriteTimeoutSec, c.Orchestrator.OverallTimeoutSec,
		)
	}

	if c.Memory.RecentWindow > c.Memory.Capacity {
		return fmt.Errorf(
			"memory.recent_window (%d) must not exceed memory.capacity (%d)",
			c.Memory.RecentWindow, c.Memory.Capacity,
		)
	}

	switch c.Cache.Driver {
	case "ristretto", "off":
	case "redis":
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required for the redis cache driver")
		}
	default:
		return fmt.Errorf("cache.driver must be ristretto, redis or off, got %q", c.Cache.Driver)
	}

	if c.Backends.Keyword.URL == "" {
		return fmt.Errorf("backends.keyword.url is required")
	}
	if c.Backends.VectorGraph.URL == "" {
		return fmt.Errorf("backends.vector_graph.url is required")
	}

	gen := c.Backends.Generative
	switch gen.Driver {
	case "off":
	case "ollama":
		if gen.URL == "" {
			return fmt.Errorf("backends.generative.url is required for the ollama driver")
		}
	case "openai", "anthropic":
		if gen.APIKey == "" {
			return fmt.Errorf("backends.generative.api_key is required for the %s driver", gen.Driver)
		}
	default:
		return fmt.Errorf(
			"backends.generative.driver must be ollama, openai, anthropic or off, got %q",
			gen.Driver,
		)
	}
	if gen.Driver != "off" && gen.Model == "" {
		return fmt.Errorf("backends.generative.model is required when the generative backend is enabled")
	}

	switch gen.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf(
			"backends.generative.budget.action must be \"warn\" or \"reject\", got %q",
			gen.Budget.Action,
		)
	}

	for name, strategy := range map[string]string{
		"backends.keyword.normalize":      c.Backends.Keyword.Normalize,
		"backends.vector_graph.normalize": c.Backends.VectorGraph.Normalize,
		"backends.generative.normalize":   c.Backends.Generative.Normalize,
	} {
		switch strategy {
		case "minmax", "clamp", "affine", "zscore":
		default:
			return fmt.Errorf("%s must be minmax, clamp, affine or zscore, got %q", name, strategy)
		}
	}

	switch c.Orchestrator.Fusion {
	case "weighted", "rrf":
	default:
		return fmt.Errorf("orchestrator.fusion must be weighted or rrf, got %q", c.Orchestrator.Fusion)
	}

	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
