package event

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUpcastTaskStartedV1ToV2(t *testing.T) {
	upcaster := NewUpcaster()

	evt, err := upcaster.Upcast(Event{
		StreamID:      "s1",
		Type:          TypeTaskStarted,
		SchemaVersion: 1,
		OccurredAt:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		PayloadJSON:   []byte(`{"title":"Fix login","summary":"investigating"}`),
	})
	if err != nil {
		t.Fatalf("upcast: %v", err)
	}
	if evt.SchemaVersion != 2 {
		t.Fatalf("expected schema version 2, got %d", evt.SchemaVersion)
	}

	var payload struct {
		Issue struct {
			Provider string `json:"provider"`
			Title    string `json:"title"`
		} `json:"issue"`
		InitialSummary string `json:"initial_summary"`
	}
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		t.Fatalf("decode migrated payload: %v", err)
	}
	if payload.Issue.Provider != "manual" {
		t.Fatalf("expected provider manual, got %q", payload.Issue.Provider)
	}
	if payload.Issue.Title != "Fix login" {
		t.Fatalf("expected title carried over, got %q", payload.Issue.Title)
	}
	if payload.InitialSummary != "investigating" {
		t.Fatalf("expected summary renamed, got %q", payload.InitialSummary)
	}
}

func TestUpcastIdempotentAtCurrentVersion(t *testing.T) {
	upcaster := NewUpcaster()
	original := Event{
		StreamID:      "s1",
		Type:          TypeTaskStarted,
		SchemaVersion: 2,
		PayloadJSON:   []byte(`{"issue":{"provider":"github","id":"42","title":"T"},"initial_summary":"s"}`),
	}

	once, err := upcaster.Upcast(original)
	if err != nil {
		t.Fatalf("first upcast: %v", err)
	}
	twice, err := upcaster.Upcast(once)
	if err != nil {
		t.Fatalf("second upcast: %v", err)
	}
	if string(once.PayloadJSON) != string(original.PayloadJSON) {
		t.Fatalf("current-version payload changed: %s", once.PayloadJSON)
	}
	if string(twice.PayloadJSON) != string(once.PayloadJSON) || twice.SchemaVersion != once.SchemaVersion {
		t.Fatalf("upcast is not idempotent")
	}
}

func TestUpcastTotalOverKnownTypes(t *testing.T) {
	upcaster := NewUpcaster()
	for _, eventType := range Types {
		evt := Event{
			StreamID:      "s1",
			Type:          eventType,
			SchemaVersion: CurrentSchemaVersion(eventType),
			PayloadJSON:   []byte(`{}`),
		}
		if _, err := upcaster.Upcast(evt); err != nil {
			t.Fatalf("%s: unexpected error %v", eventType, err)
		}
	}
}

func TestUpcastUnknownTypeFails(t *testing.T) {
	upcaster := NewUpcaster()
	if _, err := upcaster.Upcast(Event{Type: Type("task.exploded"), SchemaVersion: 1}); err == nil {
		t.Fatalf("expected error for unknown event type")
	}
}

func TestUpcastFutureSchemaVersionFails(t *testing.T) {
	upcaster := NewUpcaster()
	if _, err := upcaster.Upcast(Event{Type: TypeTaskStarted, SchemaVersion: 3}); err == nil {
		t.Fatalf("expected error for future schema version")
	}
}

func TestUpcastZeroSchemaVersionTreatedAsV1(t *testing.T) {
	upcaster := NewUpcaster()
	evt, err := upcaster.Upcast(Event{
		Type:        TypeTaskStarted,
		PayloadJSON: []byte(`{"title":"T","summary":"s"}`),
	})
	if err != nil {
		t.Fatalf("upcast: %v", err)
	}
	if evt.SchemaVersion != 2 {
		t.Fatalf("expected migration to v2, got %d", evt.SchemaVersion)
	}
}
