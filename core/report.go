package core

// ReportReason records why a terminal report was produced.
type ReportReason string

const (
	// ReasonCompleted means the worker submitted a report voluntarily.
	ReasonCompleted ReportReason = "completed"
	// ReasonMaxTurns means the turn budget forced the report.
	ReasonMaxTurns ReportReason = "max_turns"
	// ReasonProtocolErrors means repeated malformed actions forced the report.
	ReasonProtocolErrors ReportReason = "protocol_errors"
	// ReasonCancelled means the task was cancelled at a turn boundary.
	ReasonCancelled ReportReason = "cancelled"
	// ReasonValidationFailed means the worker's report lacked required outputs.
	ReasonValidationFailed ReportReason = "validation_failed"
	// ReasonStrategyError means the reasoning collaborator failed outright.
	ReasonStrategyError ReportReason = "strategy_error"
)

// Report is the terminal output of one worker run. Contexts preserve the
// order declared by the worker; merge order across batch siblings is decided
// by the batch runner, not here.
type Report struct {
	TaskID    string        `json:"task_id"`
	Contexts  []ContextItem `json:"contexts"`
	Comments  string        `json:"comments"`
	TurnsUsed int           `json:"turns_used"`
	Reason    ReportReason  `json:"reason"`
	Forced    bool          `json:"forced"`
}

// Terminal maps the report reason to the task's terminal status.
func (r *Report) Terminal() Status {
	switch r.Reason {
	case ReasonCompleted:
		return StatusCompleted
	case ReasonMaxTurns:
		return StatusTimedOut
	case ReasonCancelled:
		return StatusCancelled
	default:
		return StatusFailed
	}
}

// ContextIDs returns the ids of the contexts carried by the report in
// declaration order.
func (r *Report) ContextIDs() []string {
	ids := make([]string, len(r.Contexts))
	for i, c := range r.Contexts {
		ids[i] = c.ID
	}
	return ids
}
