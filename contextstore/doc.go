// Package contextstore provides implementations of core.ContextStore, the
// append-only versioned knowledge base shared across a session. InMemoryStore
// is the default volatile implementation; contextstore/sqlite persists the
// store across sessions.
package contextstore
