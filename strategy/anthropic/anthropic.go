// Package anthropic provides a strategy backed by the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/strategy"
)

// Options configures the Anthropic strategy (model id, temperature, max
// tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	Logger      logging.Logger
}

// Strategy adapts the Anthropic Messages API to core.Strategy. Each turn is
// a single-shot completion: the full turn state is rendered into the prompt,
// so no conversation state is kept between calls.
type Strategy struct {
	client *anthropic.Client
	opts   Options
}

var _ core.Strategy = (*Strategy)(nil)

// New creates a new Anthropic strategy using the official client.
func New(optFns ...func(o *Options)) *Strategy {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Strategy{client: &client, opts: opts}
}

// NewFromClient creates a new Anthropic strategy from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Strategy {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Strategy{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
		Logger:      logging.NoOpLogger{},
	}
}

// Next implements core.Strategy.
func (s *Strategy) Next(ctx context.Context, state *core.TurnState) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       s.opts.Model,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: anthropic.Float(s.opts.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: strategy.SystemPrompt(state.Task.AgentType)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(strategy.RenderTurn(state))),
		},
	}

	start := time.Now()
	resp, err := s.client.Messages.New(ctx, params)
	s.logCall(time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("anthropic api returned no text content")
	}
	return text, nil
}

func (s *Strategy) logCall(dur time.Duration, err error) {
	if l, ok := s.opts.Logger.(*logging.TaskMeshLogger); ok {
		l.LogModelCall(string(s.opts.Model), dur, err == nil, err)
		return
	}
	s.opts.Logger.Debug("model call completed", "model", string(s.opts.Model), "duration", dur, "error", err)
}
