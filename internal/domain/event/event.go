package event

import (
	"strings"
	"time"
)

// Type identifies the kind of a task-session event.
type Type string

// Task-session lifecycle events.
const (
	// TypeTaskStarted records the creation of a task session.
	TypeTaskStarted Type = "task.started"
	// TypeTaskUpdated records a progress report against a running task.
	TypeTaskUpdated Type = "task.updated"
	// TypeTaskBlocked records a reported block.
	TypeTaskBlocked Type = "task.blocked"
	// TypeBlockResolved records the resolution of a previously reported block.
	TypeBlockResolved Type = "task.block_resolved"
	// TypeTaskPaused records a pause report.
	TypeTaskPaused Type = "task.paused"
	// TypeTaskResumed records a resume after a pause.
	TypeTaskResumed Type = "task.resumed"
	// TypeTaskCompleted records successful completion.
	TypeTaskCompleted Type = "task.completed"
	// TypeTaskCancelled records cancellation.
	TypeTaskCancelled Type = "task.cancelled"
	// TypeSlackThreadLinked records the notification-channel binding created by
	// the first successful notify delivery. It is appended by the outbox drain
	// step, never by a user command.
	TypeSlackThreadLinked Type = "task.slack_thread_linked"
)

// Types lists every known event type. Registry-style exhaustiveness checks
// (upcaster, projection) iterate this list in tests.
var Types = []Type{
	TypeTaskStarted,
	TypeTaskUpdated,
	TypeTaskBlocked,
	TypeBlockResolved,
	TypeTaskPaused,
	TypeTaskResumed,
	TypeTaskCompleted,
	TypeTaskCancelled,
	TypeSlackThreadLinked,
}

// Event represents an immutable fact in a task-session stream.
type Event struct {
	// StreamID is the task session this event belongs to.
	StreamID string
	// Version is the event position within the stream (0-based).
	// Assigned by storage on append.
	Version uint64
	// SchemaVersion is the payload schema revision for this event type.
	SchemaVersion int
	// Type identifies the kind of event.
	Type Type
	// OccurredAt is when the decider produced the event, not storage time.
	OccurredAt time.Time
	// ActorID identifies the agent that issued the triggering command.
	ActorID string
	// WorkspaceID identifies the workspace whose notification defaults apply.
	WorkspaceID string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is one of the known kinds.
func (t Type) IsValid() bool {
	switch t {
	case TypeTaskStarted, TypeTaskUpdated, TypeTaskBlocked, TypeBlockResolved,
		TypeTaskPaused, TypeTaskResumed, TypeTaskCompleted, TypeTaskCancelled,
		TypeSlackThreadLinked:
		return true
	}
	return false
}

// Domain returns the domain prefix of the event type (e.g., "task").
func (t Type) Domain() string {
	value := string(t)
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		return value[:idx]
	}
	return value
}
