// Package anthropic implements the generative backend over the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/metrics"
)

const defaultMaxTokens = 1024

// messagesClient is the slice of the SDK the adapter calls, narrow enough to
// substitute a recording fake in tests.
type messagesClient interface {
	New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// sdkMessages adapts the real MessageService to messagesClient.
type sdkMessages struct {
	service *anthropic.MessageService
}

func (s *sdkMessages) New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return s.service.New(ctx, params)
}

// Config holds Anthropic API settings.
type Config struct {
	APIKey  string
	BaseURL string // empty keeps the SDK default
	Model   string
	Logger  *zap.Logger
}

// Adapter is the generative backend.
type Adapter struct {
	messages messagesClient
	model    string
	logger   *zap.Logger
}

// New creates an Anthropic generative adapter.
func New(cfg *Config) *Adapter {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Adapter{
		messages: &sdkMessages{service: &client.Messages},
		model:    cfg.Model,
		logger:   log,
	}
}

// Kind implements domain.Adapter.
func (a *Adapter) Kind() domain.Kind { return domain.KindGenerative }

// Name implements domain.Adapter.
func (a *Adapter) Name() string { return "anthropic" }

// Invoke implements domain.Adapter.
func (a *Adapter) Invoke(ctx context.Context, sq domain.SubQuery) (domain.Payload, error) {
	maxTokens := int64(sq.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	message, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(sq.Prompt)),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.Payload{}, fmt.Errorf("anthropic message: %w", ctx.Err())
		}
		return domain.Payload{}, fmt.Errorf("anthropic message: %v: %w", err, domain.ErrBackendUnavailable)
	}

	var answer strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			answer.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(answer.String()) == "" {
		return domain.Payload{}, fmt.Errorf("empty completion: %w", domain.ErrBackendInvalidResponse)
	}

	usage := message.Usage
	metrics.GenerativeTokensTotal.WithLabelValues("anthropic", "prompt").Add(float64(usage.InputTokens))
	metrics.GenerativeTokensTotal.WithLabelValues("anthropic", "completion").Add(float64(usage.OutputTokens))

	a.logger.Debug("Anthropic message finished",
		zap.Int64("input_tokens", usage.InputTokens),
		zap.Int64("output_tokens", usage.OutputTokens),
	)

	return domain.Payload{
		Answer:     answer.String(),
		Confidence: math.NaN(),
		Tokens:     int(usage.InputTokens + usage.OutputTokens),
	}, nil
}

// HealthCheck implements domain.HealthChecker with a minimal one-token probe.
// The Messages API has no free status endpoint.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	_, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("anthropic ping: %v: %w", err, domain.ErrBackendUnavailable)
	}
	return nil
}
