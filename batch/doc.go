// Package batch fans out dispatched tasks concurrently and joins their
// results deterministically. Every launch goes through the Runner, a single
// task being a batch of one. Siblings share the context snapshot taken at
// launch, run under a concurrency cap, and are merged back into the store in
// declaration order once all of them have finished.
package batch
