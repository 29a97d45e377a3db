package core

import "context"

// Backend is the external execution environment for file, search and shell
// actions. Given an environment-class action it performs the effect and
// returns the textual result, or a *BackendError describing the failure.
//
// The engine guarantees that only capability-permitted actions reach the
// backend; a backend never needs to re-check policy. Implementations must
// be safe for concurrent use since batch siblings share one backend.
type Backend interface {
	Execute(ctx context.Context, action Action) (string, error)
}

// BackendFunc adapts a plain function to the Backend interface.
type BackendFunc func(ctx context.Context, action Action) (string, error)

// Execute implements Backend.
func (f BackendFunc) Execute(ctx context.Context, action Action) (string, error) {
	return f(ctx, action)
}
