package task

// StartPayload is the task.start command payload and the task.started event
// payload. The decider normalizes it before emitting.
type StartPayload struct {
	Issue          IssueRef `json:"issue"`
	InitialSummary string   `json:"initial_summary"`
}

// ProgressPayload carries a progress summary for task.add_progress and
// task.updated.
type ProgressPayload struct {
	Summary string `json:"summary"`
}

// BlockPayload carries a block report. The block report id is generated by
// the caller before deciding so the decider stays free of randomness.
type BlockPayload struct {
	BlockReportID string `json:"block_report_id"`
	Reason        string `json:"reason"`
}

// BlockResolvedPayload identifies the block being resolved.
type BlockResolvedPayload struct {
	BlockReportID string `json:"block_report_id"`
}

// PausePayload carries a pause report.
type PausePayload struct {
	PauseReportID string `json:"pause_report_id"`
	Reason        string `json:"reason"`
}

// ResumePayload carries the summary supplied on resume.
type ResumePayload struct {
	Summary string `json:"summary"`
}

// CompletePayload carries the completion summary. The emitted task.completed
// event also records the blocks left unresolved at completion time; they are
// reported, never required to be resolved first.
type CompletePayload struct {
	Summary          string        `json:"summary"`
	UnresolvedBlocks []BlockRecord `json:"unresolved_blocks,omitempty"`
}

// CancelPayload carries an optional cancellation reason.
type CancelPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ThreadLinkedPayload records the chat thread bound by the first successful
// notify delivery.
type ThreadLinkedPayload struct {
	Channel  string `json:"channel"`
	ThreadTS string `json:"thread_ts"`
}
