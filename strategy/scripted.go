package strategy

import (
	"context"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// Scripted replays a fixed sequence of wire outputs. It is deterministic and
// needs no network, which makes it the strategy of choice for tests and
// offline dry runs.
type Scripted struct {
	mu       sync.Mutex
	script   []string
	fallback string
	forced   string
}

var _ core.Strategy = (*Scripted)(nil)

// NewScripted creates a Scripted strategy. When the script is exhausted the
// fallback output is replayed indefinitely.
func NewScripted(script []string, optFns ...func(s *Scripted)) *Scripted {
	s := &Scripted{
		script:   append([]string(nil), script...),
		fallback: "",
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// WithFallback sets the output replayed once the script runs dry.
func WithFallback(out string) func(s *Scripted) {
	return func(s *Scripted) { s.fallback = out }
}

// WithForcedReport sets the output returned whenever a report is demanded.
func WithForcedReport(out string) func(s *Scripted) {
	return func(s *Scripted) { s.forced = out }
}

// Next implements core.Strategy.
func (s *Scripted) Next(ctx context.Context, state *core.TurnState) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.ForceReport && s.forced != "" {
		return s.forced, nil
	}
	if len(s.script) == 0 {
		return s.fallback, nil
	}
	out := s.script[0]
	s.script = s.script[1:]
	return out, nil
}

// RemainingSteps returns how many scripted outputs are left.
func (s *Scripted) RemainingSteps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.script)
}
