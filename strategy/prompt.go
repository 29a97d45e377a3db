package strategy

import (
	"fmt"
	"strings"

	"github.com/hupe1980/taskmesh/core"
)

// SystemPrompt renders the standing instructions for an agent type: its role,
// its permitted verbs, and the wire format every action must use.
func SystemPrompt(agentType core.AgentType) string {
	var b strings.Builder
	b.WriteString(roleDescription(agentType))
	b.WriteString(`

Respond with exactly one action per turn. An action is an XML-style tagged
block whose body is YAML, for example:

<read>
file_path: cmd/main.go
</read>

Text outside a block is treated as reasoning and costs a turn without doing
anything. Emitting more than one block in a single turn is an error.
`)
	b.WriteString("\nActions available to you:\n")
	for _, v := range verbsFor(agentType) {
		fmt.Fprintf(&b, "- %s\n", v)
	}
	return b.String()
}

// RenderTurn renders the per-turn user message from the turn state.
func RenderTurn(state *core.TurnState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Objective:\n%s\n", state.Objective)
	fmt.Fprintf(&b, "\nTurn %d, %d turn(s) remaining.\n", state.Turn, state.Remaining)

	if len(state.Contexts) > 0 {
		b.WriteString("\nContexts:\n")
		for _, c := range state.Contexts {
			fmt.Fprintf(&b, "--- %s (v%d) ---\n%s\n", c.ID, c.Version, c.Content)
		}
	}

	if len(state.Observations) > 0 {
		b.WriteString("\nObservations:\n")
		for _, o := range state.Observations {
			label := o.Source
			if o.IsError {
				label += ", error"
			}
			fmt.Fprintf(&b, "[%s] %s\n", label, o.Content)
		}
	}

	if state.ForceReport {
		b.WriteString("\nYou must submit a <report> block now. No other action will be accepted.\n")
	}
	return b.String()
}

func roleDescription(agentType core.AgentType) string {
	switch agentType {
	case core.AgentTypeExplorer:
		return "You are an explorer agent. Investigate the workspace read-only and report your findings as contexts."
	case core.AgentTypeReviewer:
		return "You are a code reviewer agent. Inspect the workspace read-only and report your verdict. Your report must include a context with id \"review-summary\"."
	case core.AgentTypeCoder:
		return "You are a coder agent. Implement the requested changes in the workspace and report what you changed as contexts."
	case core.AgentTypeTestWriter:
		return "You are a test writer agent. Write tests for the requested behavior and report what you covered as contexts."
	case core.AgentTypeOrchestrator:
		return "You are the session coordinator. Break the objective into tasks, launch them in parallel batches, integrate their reported contexts, and finish when the objective is met. You never submit reports; workers do."
	default:
		return "You are a worker agent."
	}
}

func verbsFor(agentType core.AgentType) []core.Verb {
	inspection := []core.Verb{
		core.VerbRead, core.VerbGrep, core.VerbGlob, core.VerbFileMetadata,
		core.VerbBash, core.VerbAddNote,
	}
	switch agentType {
	case core.AgentTypeOrchestrator:
		return append([]core.Verb{
			core.VerbTaskCreate, core.VerbLaunchParallel, core.VerbAddContext, core.VerbFinish,
		}, inspection...)
	case core.AgentTypeCoder, core.AgentTypeTestWriter:
		return append(append([]core.Verb{}, inspection...),
			core.VerbWrite, core.VerbEdit, core.VerbMultiEdit, core.VerbReport)
	default:
		return append(append([]core.Verb{}, inspection...), core.VerbReport)
	}
}
