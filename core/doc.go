// Package core contains the shared domain model of taskmesh: context
// entries and the ContextStore contract, task records and their status
// machine, the action vocabulary exchanged between the coordinator and
// its workers, worker reports, and the error taxonomy.
//
// Interfaces for external collaborators live here as well: Strategy is
// the injected reasoning function that produces the next action for a
// turn, and Backend is the execution environment that carries out
// file, search and shell actions. Implementations live in their own
// packages (contextstore, strategy, backend) so that the engine
// packages (subagent, batch, orchestrator) depend only on core.
package core
