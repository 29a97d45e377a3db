// Package backend implements the execution side of the action protocol.
// Local runs environment verbs against a workspace directory on the host:
// file reads and writes, string edits, content and path searches, metadata
// lookups, and shell commands under a deadline. All failures surface as
// *core.BackendError so the dispatcher can relay them as turn feedback.
package backend
