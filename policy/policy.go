package policy

import (
	"fmt"

	"github.com/hupe1980/taskmesh/core"
)

// Table is the capability mapping consulted before every action dispatch.
// The zero value permits nothing; use Default for the standard profiles.
type Table struct {
	// permitted[agentType][verb] = true
	permitted map[core.AgentType]map[core.Verb]bool
}

// inspection verbs are available to every worker profile.
var inspectionVerbs = []core.Verb{
	core.VerbRead,
	core.VerbGrep,
	core.VerbGlob,
	core.VerbFileMetadata,
	core.VerbBash,
	core.VerbAddNote,
	core.VerbReport,
	core.VerbReasoning,
}

var mutatingVerbs = []core.Verb{
	core.VerbWrite,
	core.VerbEdit,
	core.VerbMultiEdit,
}

var orchestrationVerbs = []core.Verb{
	core.VerbTaskCreate,
	core.VerbLaunchParallel,
	core.VerbAddContext,
	core.VerbFinish,
}

// Default returns the standard capability table: explorer and reviewer are
// read-only, coder and test_writer add the mutating verbs, the orchestrator
// holds every verb except the worker-terminal report.
func Default() *Table {
	t := &Table{permitted: make(map[core.AgentType]map[core.Verb]bool)}

	for _, at := range []core.AgentType{core.AgentTypeExplorer, core.AgentTypeReviewer} {
		t.grant(at, inspectionVerbs...)
	}
	for _, at := range []core.AgentType{core.AgentTypeCoder, core.AgentTypeTestWriter} {
		t.grant(at, inspectionVerbs...)
		t.grant(at, mutatingVerbs...)
	}

	t.grant(core.AgentTypeOrchestrator, inspectionVerbs...)
	t.grant(core.AgentTypeOrchestrator, mutatingVerbs...)
	t.grant(core.AgentTypeOrchestrator, orchestrationVerbs...)
	t.revoke(core.AgentTypeOrchestrator, core.VerbReport)

	return t
}

func (t *Table) grant(at core.AgentType, verbs ...core.Verb) {
	m, ok := t.permitted[at]
	if !ok {
		m = make(map[core.Verb]bool)
		t.permitted[at] = m
	}
	for _, v := range verbs {
		m[v] = true
	}
}

func (t *Table) revoke(at core.AgentType, verbs ...core.Verb) {
	m, ok := t.permitted[at]
	if !ok {
		return
	}
	for _, v := range verbs {
		delete(m, v)
	}
}

// IsPermitted reports whether the agent type may issue the verb. Unknown
// agent types are permitted nothing.
func (t *Table) IsPermitted(at core.AgentType, verb core.Verb) bool {
	return t.permitted[at][verb]
}

// Check returns nil when permitted and a *core.CapabilityViolation otherwise.
func (t *Table) Check(at core.AgentType, verb core.Verb) error {
	if t.IsPermitted(at, verb) {
		return nil
	}
	return &core.CapabilityViolation{AgentType: at, Verb: verb}
}

// BlockedMessage renders the feedback text a worker receives when its action
// is rejected, including the corrective hint about its own capability class.
func (t *Table) BlockedMessage(at core.AgentType, verb core.Verb) string {
	if verb.Mutating() && !at.WriteCapable() {
		return fmt.Sprintf(
			"[PERMISSION DENIED] agent type %q is read-only and cannot perform write action %q; "+
				"only write-capable agent types (coder, test_writer) may mutate files", at, verb)
	}
	if verb.Orchestration() {
		return fmt.Sprintf(
			"[PERMISSION DENIED] action %q is reserved to the orchestrator and cannot be issued by agent type %q", verb, at)
	}
	return fmt.Sprintf("[PERMISSION DENIED] agent type %q may not issue action %q", at, verb)
}
