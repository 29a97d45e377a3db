// Package policy maps agent types to the action verbs they may issue.
//
// Read-only profiles (explorer, reviewer) are limited to inspection-class
// verbs; write-capable profiles (coder, test_writer) add the mutating verbs;
// orchestration verbs are reserved to the coordinator. Enforcement happens
// in the dispatcher before an action reaches the execution backend: a
// violation costs the worker no turn and has no effect.
package policy
