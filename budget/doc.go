// Package budget enforces the turn budgets that bound worker and session
// activity. A Meter tracks turns consumed per task plus an optional
// session-wide total; consuming past a limit yields core.ErrBudgetExhausted,
// at which point the dispatcher forces a terminal report.
package budget
