// Package subagent runs a single worker task from dispatch to terminal
// report. The Dispatcher owns the turn loop: it feeds turn state to the
// strategy, decodes the returned action, enforces the capability table and
// the turn budget, delegates environment verbs to the backend, and forces a
// terminal report when the budget runs out or the worker stops making
// progress.
package subagent
