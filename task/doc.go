// Package task owns the task lifecycle. The Manager is the single writer of
// task state: creation, dispatch, turn accounting, and finalization all go
// through it, and terminal statuses are immutable once reached.
package task
