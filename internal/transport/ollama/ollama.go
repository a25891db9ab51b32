// Package ollama implements the generative backend against a local Ollama
// runtime. Generation goes through the non-streaming /api/generate endpoint;
// the runtime reports prompt and completion token counts with every answer.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/metrics"
)

// Config holds Ollama connection settings.
type Config struct {
	URL         string // base URL, e.g. http://localhost:11434
	Model       string // model name, e.g. llama3.2
	Temperature float64
	Logger      *zap.Logger
}

// Adapter is the generative backend.
type Adapter struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
	logger      *zap.Logger
}

// New creates an Ollama generative adapter. Timeouts are owned by the
// per-call context, not the client.
func New(cfg *Config) *Adapter {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: 0},
		logger:      log,
	}
}

// Kind implements domain.Adapter.
func (a *Adapter) Kind() domain.Kind { return domain.KindGenerative }

// Name implements domain.Adapter.
func (a *Adapter) Name() string { return "ollama" }

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Invoke implements domain.Adapter.
func (a *Adapter) Invoke(ctx context.Context, sq domain.SubQuery) (domain.Payload, error) {
	options := map[string]any{}
	if sq.MaxTokens > 0 {
		options["num_predict"] = sq.MaxTokens
	}
	if a.temperature > 0 {
		options["temperature"] = a.temperature
	}
	if len(options) == 0 {
		options = nil
	}

	body, err := json.Marshal(generateRequest{
		Model:   a.model,
		Prompt:  sq.Prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return domain.Payload{}, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return domain.Payload{}, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Payload{}, fmt.Errorf("ollama generate: %w", ctx.Err())
		}
		return domain.Payload{}, fmt.Errorf("ollama generate: %v: %w", err, domain.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= http.StatusInternalServerError {
			return domain.Payload{}, fmt.Errorf("ollama generate status %d: %w", resp.StatusCode, domain.ErrBackendUnavailable)
		}
		// 404 covers a model that is not pulled.
		return domain.Payload{}, fmt.Errorf("ollama generate status %d: %w", resp.StatusCode, domain.ErrBackendInvalidResponse)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return domain.Payload{}, fmt.Errorf("ollama decode: %v: %w", err, domain.ErrBackendInvalidResponse)
	}
	if strings.TrimSpace(gen.Response) == "" {
		return domain.Payload{}, fmt.Errorf("empty completion: %w", domain.ErrBackendInvalidResponse)
	}

	metrics.GenerativeTokensTotal.WithLabelValues("ollama", "prompt").Add(float64(gen.PromptEvalCount))
	metrics.GenerativeTokensTotal.WithLabelValues("ollama", "completion").Add(float64(gen.EvalCount))

	a.logger.Debug("Ollama generation completed",
		zap.String("model", gen.Model),
		zap.Int("prompt_tokens", gen.PromptEvalCount),
		zap.Int("completion_tokens", gen.EvalCount),
	)

	return domain.Payload{
		Answer:     gen.Response,
		Confidence: math.NaN(),
		Tokens:     gen.PromptEvalCount + gen.EvalCount,
	}, nil
}

// HealthCheck implements domain.HealthChecker. A reachable /api/tags means
// the runtime is up; model presence is not probed here.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: build tags request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama tags: %v: %w", err, domain.ErrBackendUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags status %d: %w", resp.StatusCode, domain.ErrBackendUnavailable)
	}
	return nil
}
