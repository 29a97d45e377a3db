// Package orchestrator drives a session: a coordinator strategy plans work,
// creates tasks, launches batches through the batch runner, and finishes when
// the objective is met. The Loop enforces the session turn budget and the
// coordinator's own capability profile, and degrades to an aborted result
// with partial progress intact when the budget or deadline runs out.
package orchestrator
