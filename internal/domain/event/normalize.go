package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeForAppend validates and normalizes an event before storage assigns
// its stream version. The zero Version is the only accepted input because
// versions are owned by the append path.
func NormalizeForAppend(evt Event) (Event, error) {
	evt.StreamID = strings.TrimSpace(evt.StreamID)
	if evt.StreamID == "" {
		return Event{}, fmt.Errorf("stream id is required")
	}
	if evt.Version != 0 {
		return Event{}, fmt.Errorf("event version must be assigned by storage")
	}

	evt.Type = Type(strings.TrimSpace(string(evt.Type)))
	if !evt.Type.IsValid() {
		return Event{}, fmt.Errorf("unknown event type %q", evt.Type)
	}

	if evt.SchemaVersion == 0 {
		evt.SchemaVersion = CurrentSchemaVersion(evt.Type)
	}
	if evt.SchemaVersion < 1 {
		return Event{}, fmt.Errorf("schema version must be positive")
	}

	if evt.OccurredAt.IsZero() {
		return Event{}, fmt.Errorf("occurred-at timestamp is required")
	}

	evt.ActorID = strings.TrimSpace(evt.ActorID)
	evt.WorkspaceID = strings.TrimSpace(evt.WorkspaceID)

	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	if !json.Valid(evt.PayloadJSON) {
		return Event{}, fmt.Errorf("payload json must be valid JSON")
	}

	return evt, nil
}
