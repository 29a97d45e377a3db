// Package strategy provides the reasoning side of the engine: prompt
// rendering shared by all providers, plus a deterministic Scripted strategy
// for tests and offline runs. Provider-backed strategies live in
// strategy/anthropic and strategy/openai.
package strategy
