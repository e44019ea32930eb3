package command

import (
	"time"

	"github.com/relayforge/taskrelay/internal/domain/event"
)

// NewEvent builds an event.Event by copying the shared envelope fields from a
// command. Callers supply the event type, payload, and decision timestamp.
// This keeps per-decider boilerplate down and ensures new envelope fields are
// forwarded automatically.
func NewEvent(cmd Command, eventType event.Type, payloadJSON []byte, now time.Time) event.Event {
	return event.Event{
		StreamID:      cmd.StreamID,
		Type:          eventType,
		SchemaVersion: event.CurrentSchemaVersion(eventType),
		OccurredAt:    now,
		ActorID:       cmd.ActorID,
		WorkspaceID:   cmd.WorkspaceID,
		PayloadJSON:   payloadJSON,
	}
}
