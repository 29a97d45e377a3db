package core

import "context"

// Observation is one piece of environment feedback shown to the strategy:
// the result of an executed action, an error message, or a control notice
// such as the final-turn warning.
type Observation struct {
	// Source labels the producer: an environment verb, "protocol",
	// "capability", "control" or "context".
	Source  string `json:"source"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// TurnState is everything a strategy may inspect when deciding the next
// action: the task it is bound to, budget position, the pre-resolved context
// entries, and the accumulated observation history. The engine treats the
// strategy as an opaque function of this state.
type TurnState struct {
	Task         Task
	Objective    string
	Turn         int
	Remaining    int
	Contexts     []ContextEntry
	Observations []Observation
	// ForceReport is set when the dispatcher demands a terminal report:
	// the budget ran out or repeated protocol errors exhausted patience.
	// Only a report action is acceptable in response.
	ForceReport bool
}

// Strategy is the external reasoning collaborator. Given the current turn
// state it produces exactly one action in the protocol's wire form. The
// engine never interprets the reasoning; it only decodes the returned text.
//
// Implementations must respect ctx cancellation. Scripted strategies for
// tests live in the strategy package; provider-backed implementations in
// strategy/anthropic and strategy/openai.
type Strategy interface {
	Next(ctx context.Context, state *TurnState) (string, error)
}

// StrategyFunc adapts a plain function to the Strategy interface.
type StrategyFunc func(ctx context.Context, state *TurnState) (string, error)

// Next implements Strategy.
func (f StrategyFunc) Next(ctx context.Context, state *TurnState) (string, error) {
	return f(ctx, state)
}

// StrategyProvider selects a strategy per agent type, letting a session run
// different models (or scripts) for different worker profiles.
type StrategyProvider func(agentType AgentType) Strategy
