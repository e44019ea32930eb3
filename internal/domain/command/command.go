package command

// Type identifies the kind of a task-session command.
type Type string

// Task-session lifecycle commands.
const (
	TypeStartTask    Type = "task.start"
	TypeAddProgress  Type = "task.add_progress"
	TypeReportBlock  Type = "task.report_block"
	TypeResolveBlock Type = "task.resolve_block"
	TypePauseTask    Type = "task.pause"
	TypeResumeTask   Type = "task.resume"
	TypeCompleteTask Type = "task.complete"
	TypeCancelTask   Type = "task.cancel"
)

// Command expresses caller intent against one task-session stream. Commands
// never carry a stream version; the decider always evaluates them against the
// latest replayed state.
type Command struct {
	// Type identifies the requested operation.
	Type Type
	// StreamID addresses the task session.
	StreamID string
	// ActorID identifies the agent issuing the command.
	ActorID string
	// WorkspaceID scopes notification defaults.
	WorkspaceID string
	// PayloadJSON holds command-specific data as JSON.
	PayloadJSON []byte
}
