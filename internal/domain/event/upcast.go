package event

import (
	"encoding/json"
	"fmt"
)

// currentSchemaVersions records the payload schema revision the deciders and
// projections understand for each event type. Bump a type's entry together
// with a new chain step so stored history keeps loading.
var currentSchemaVersions = map[Type]int{
	TypeTaskStarted:       2,
	TypeTaskUpdated:       1,
	TypeTaskBlocked:       1,
	TypeBlockResolved:     1,
	TypeTaskPaused:        1,
	TypeTaskResumed:       1,
	TypeTaskCompleted:     1,
	TypeTaskCancelled:     1,
	TypeSlackThreadLinked: 1,
}

// CurrentSchemaVersion returns the schema version current code writes for the
// given event type. Unknown types report zero.
func CurrentSchemaVersion(t Type) int {
	return currentSchemaVersions[t]
}

// upcastFunc transforms an event payload from one schema version to the next.
type upcastFunc func(Event) (Event, error)

// Upcaster normalizes stored events to the schema version current code
// expects. It is applied to every event between storage read and fold.
type Upcaster struct {
	chains map[Type]map[int]upcastFunc
}

// NewUpcaster returns the upcaster covering every known event type.
func NewUpcaster() *Upcaster {
	return &Upcaster{
		chains: map[Type]map[int]upcastFunc{
			TypeTaskStarted: {
				1: upcastTaskStartedV1,
			},
		},
	}
}

// Upcast transforms evt to its type's current schema version. It is a total
// function over the known event types and idempotent for events already at
// the current version. An unknown type is an exhaustiveness violation, not a
// skippable case: history containing it cannot be interpreted.
func (u *Upcaster) Upcast(evt Event) (Event, error) {
	current, ok := currentSchemaVersions[evt.Type]
	if !ok {
		return Event{}, fmt.Errorf("unhandled event type %q at version %d", evt.Type, evt.Version)
	}
	if evt.SchemaVersion == 0 {
		evt.SchemaVersion = 1
	}
	if evt.SchemaVersion > current {
		return Event{}, fmt.Errorf("event type %q schema version %d is newer than supported %d", evt.Type, evt.SchemaVersion, current)
	}
	for evt.SchemaVersion < current {
		step := u.chains[evt.Type][evt.SchemaVersion]
		if step == nil {
			return Event{}, fmt.Errorf("no upcast step for %q schema version %d", evt.Type, evt.SchemaVersion)
		}
		next, err := step(evt)
		if err != nil {
			return Event{}, fmt.Errorf("upcast %q from schema version %d: %w", evt.Type, evt.SchemaVersion, err)
		}
		if next.SchemaVersion <= evt.SchemaVersion {
			return Event{}, fmt.Errorf("upcast step for %q did not advance schema version", evt.Type)
		}
		evt = next
	}
	return evt, nil
}

// upcastTaskStartedV1 migrates the original flat task.started payload
// {"title","summary"} to the v2 shape with a nested issue reference and an
// explicit initial summary. Early sessions were always manually filed, so the
// provider defaults to "manual".
func upcastTaskStartedV1(evt Event) (Event, error) {
	var legacy struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(evt.PayloadJSON, &legacy); err != nil {
		return Event{}, fmt.Errorf("decode legacy payload: %w", err)
	}

	migrated := struct {
		Issue struct {
			Provider string `json:"provider"`
			ID       string `json:"id,omitempty"`
			Title    string `json:"title"`
		} `json:"issue"`
		InitialSummary string `json:"initial_summary"`
	}{InitialSummary: legacy.Summary}
	migrated.Issue.Provider = "manual"
	migrated.Issue.Title = legacy.Title

	payloadJSON, err := json.Marshal(migrated)
	if err != nil {
		return Event{}, fmt.Errorf("encode migrated payload: %w", err)
	}
	evt.PayloadJSON = payloadJSON
	evt.SchemaVersion = 2
	return evt, nil
}
