package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/metrics"
)

// Generator is a generative backend using the OpenAI-compatible chat
// completion API (OpenAI itself, or any compatible serving layer).
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	user        string
	logger      *zap.Logger
}

// Config holds the completion provider settings.
type Config struct {
	APIKey      string
	BaseURL     string // empty keeps the provider default
	Model       string
	Temperature float64
	User        string
	Logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible generative adapter.
func NewGenerator(cfg *Config) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		user:        cfg.User,
		logger:      log,
	}
}

// Kind implements domain.Adapter.
func (g *Generator) Kind() domain.Kind { return domain.KindGenerative }

// Name implements domain.Adapter.
func (g *Generator) Name() string { return "openai" }

// Invoke implements domain.Adapter. The assembled prompt goes out as a single
// user message; the API reports token usage with every completion.
func (g *Generator) Invoke(ctx context.Context, sq domain.SubQuery) (domain.Payload, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: sq.Prompt},
		},
		User: g.user,
	}
	if sq.MaxTokens > 0 {
		req.MaxTokens = sq.MaxTokens
	}
	if g.temperature > 0 {
		req.Temperature = g.temperature
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Payload{}, fmt.Errorf("openai completion: %w", ctx.Err())
		}
		return domain.Payload{}, parseAPIError(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return domain.Payload{}, fmt.Errorf("empty completion: %w", domain.ErrBackendInvalidResponse)
	}

	usage := resp.Usage
	metrics.GenerativeTokensTotal.WithLabelValues("openai", "prompt").Add(float64(usage.PromptTokens))
	metrics.GenerativeTokensTotal.WithLabelValues("openai", "completion").Add(float64(usage.CompletionTokens))

	g.logger.Debug("OpenAI completion finished",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
	)

	return domain.Payload{
		Answer:     resp.Choices[0].Message.Content,
		Confidence: math.NaN(),
		Tokens:     usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %v: %w", err, domain.ErrBackendUnavailable)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response and
// wraps it with the sentinel the dispatcher classifies on.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("completion API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, sentinelFor(reqErr.HTTPStatusCode))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, sentinelFor(apiErr.HTTPStatusCode))
	}

	return fmt.Errorf("completion request failed: %w", domain.ErrBackendUnavailable)
}

// sentinelFor maps an API status to a backend sentinel. Rate limiting and
// server-side failures are retryable, the rest means the request itself is
// bad for this provider.
func sentinelFor(status int) error {
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError && status != http.StatusTooManyRequests {
		return domain.ErrBackendInvalidResponse
	}
	return domain.ErrBackendUnavailable
}

// extractDetail extracts the "detail" field from a JSON error body (used by
// some OpenAI-compatible providers instead of the standard error envelope).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
