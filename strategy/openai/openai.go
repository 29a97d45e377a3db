// Package openai provides a strategy backed by the OpenAI Chat Completions
// API. It renders the turn state into a single-shot completion; no
// conversation state is kept between turns.
package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/strategy"
)

// Options configure the OpenAI strategy. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	Logger              logging.Logger
}

// Strategy adapts the OpenAI Chat Completions API to core.Strategy.
type Strategy struct {
	client *openai.Client
	opts   Options
}

var _ core.Strategy = (*Strategy)(nil)

// New creates a new OpenAI strategy using the official client.
func New(optFns ...func(o *Options)) *Strategy {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI strategy from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Strategy {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Strategy{client: client, opts: opts}
}

// Next implements core.Strategy.
func (s *Strategy) Next(ctx context.Context, state *core.TurnState) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: s.opts.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(strategy.SystemPrompt(state.Task.AgentType)),
			openai.UserMessage(strategy.RenderTurn(state)),
		},
		Temperature:         openai.Float(s.opts.Temperature),
		MaxCompletionTokens: openai.Int(s.opts.MaxCompletionTokens),
	}

	start := time.Now()
	resp, err := s.client.Chat.Completions.New(ctx, params)
	s.logCall(time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai api returned no choices")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("openai api returned empty content")
	}
	return content, nil
}

func (s *Strategy) logCall(dur time.Duration, err error) {
	if l, ok := s.opts.Logger.(*logging.TaskMeshLogger); ok {
		l.LogModelCall(s.opts.Model, dur, err == nil, err)
		return
	}
	s.opts.Logger.Debug("model call completed", "model", s.opts.Model, "duration", dur, "error", err)
}
