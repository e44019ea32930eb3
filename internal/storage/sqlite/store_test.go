package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/relayforge/taskrelay/internal/domain/event"
	"github.com/relayforge/taskrelay/internal/domain/task"
	"github.com/relayforge/taskrelay/internal/filter"
	"github.com/relayforge/taskrelay/internal/outbox"
	"github.com/relayforge/taskrelay/internal/projection"
	"github.com/relayforge/taskrelay/internal/storage"
)

func openStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func mustJSON(t *testing.T, value any) []byte {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func startedEvent(t *testing.T, title string) event.Event {
	t.Helper()
	return event.Event{
		Type:       event.TypeTaskStarted,
		OccurredAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		PayloadJSON: mustJSON(t, task.StartPayload{
			Issue: task.IssueRef{Provider: "manual", Title: title},
		}),
	}
}

func typedEvent(t *testing.T, eventType event.Type, payload any) event.Event {
	t.Helper()
	return event.Event{
		Type:        eventType,
		OccurredAt:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		PayloadJSON: mustJSON(t, payload),
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestAppendAndListEventsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	appended, err := store.AppendEvents(ctx, "s1", -1, []event.Event{
		startedEvent(t, "Fix login"),
		typedEvent(t, event.TypeTaskUpdated, task.ProgressPayload{Summary: "halfway"}),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(appended) != 2 || appended[0].Version != 0 || appended[1].Version != 1 {
		t.Fatalf("expected versions 0 and 1, got %+v", appended)
	}

	events, err := store.ListEvents(ctx, "s1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != event.TypeTaskStarted || events[1].Type != event.TypeTaskUpdated {
		t.Fatalf("unexpected event types %s, %s", events[0].Type, events[1].Type)
	}
	if events[0].StreamID != "s1" || events[0].OccurredAt.IsZero() {
		t.Fatalf("event metadata lost: %+v", events[0])
	}

	tail, err := store.LatestVersion(ctx, "s1")
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if tail != 1 {
		t.Fatalf("expected tail 1, got %d", tail)
	}
}

func TestLatestVersionEmptyStream(t *testing.T) {
	store := openStore(t)
	tail, err := store.LatestVersion(context.Background(), "missing")
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if tail != -1 {
		t.Fatalf("expected -1 for empty stream, got %d", tail)
	}
}

func TestAppendVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if _, err := store.AppendEvents(ctx, "s1", -1, []event.Event{startedEvent(t, "T")}); err != nil {
		t.Fatalf("first append: %v", err)
	}

	// A writer holding a stale tail loses the race.
	_, err := store.AppendEvents(ctx, "s1", -1, []event.Event{
		typedEvent(t, event.TypeTaskUpdated, task.ProgressPayload{Summary: "stale"}),
	})
	if !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	// Reloading the tail and re-appending succeeds.
	tail, err := store.LatestVersion(ctx, "s1")
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if _, err := store.AppendEvents(ctx, "s1", tail, []event.Event{
		typedEvent(t, event.TypeTaskUpdated, task.ProgressPayload{Summary: "fresh"}),
	}); err != nil {
		t.Fatalf("retry append: %v", err)
	}

	events, err := store.ListEvents(ctx, "s1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected the stale append to leave no trace, got %d events", len(events))
	}
}

func TestAppendRejectsPreassignedVersion(t *testing.T) {
	store := openStore(t)
	evt := startedEvent(t, "T")
	evt.Version = 3
	if _, err := store.AppendEvents(context.Background(), "s1", -1, []event.Event{evt}); err == nil {
		t.Fatal("expected rejection of preassigned version")
	}
}

func TestAppendRejectsForeignStream(t *testing.T) {
	store := openStore(t)
	evt := startedEvent(t, "T")
	evt.StreamID = "other"
	if _, err := store.AppendEvents(context.Background(), "s1", -1, []event.Event{evt}); err == nil {
		t.Fatal("expected rejection of mismatched stream id")
	}
}

func TestAppendProjectsReadModel(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, WithProjection(projection.Apply))

	if _, err := store.AppendEvents(ctx, "s1", -1, []event.Event{startedEvent(t, "Fix login")}); err != nil {
		t.Fatalf("append started: %v", err)
	}

	record, err := store.GetTask(ctx, "s1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if record.Status != task.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", record.Status)
	}
	if record.IssueTitle != "Fix login" || record.IssueProvider != "manual" {
		t.Fatalf("issue fields lost: %+v", record)
	}

	if _, err := store.AppendEvents(ctx, "s1", 0, []event.Event{
		typedEvent(t, event.TypeTaskBlocked, task.BlockPayload{BlockReportID: "b1", Reason: "waiting"}),
	}); err != nil {
		t.Fatalf("append blocked: %v", err)
	}

	record, err = store.GetTask(ctx, "s1")
	if err != nil {
		t.Fatalf("get task after block: %v", err)
	}
	if record.Status != task.StatusBlocked || record.UnresolvedBlockCount != 1 {
		t.Fatalf("expected blocked with one open block, got %s/%d",
			record.Status, record.UnresolvedBlockCount)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	store := openStore(t)
	_, err := store.GetTask(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListTasksStatusAndFilter(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, WithProjection(projection.Apply))

	for _, streamID := range []string{"s1", "s2", "s3"} {
		if _, err := store.AppendEvents(ctx, streamID, -1, []event.Event{startedEvent(t, "Task " + streamID)}); err != nil {
			t.Fatalf("append %s: %v", streamID, err)
		}
	}
	if _, err := store.AppendEvents(ctx, "s3", 0, []event.Event{
		typedEvent(t, event.TypeTaskCompleted, task.CompletePayload{}),
	}); err != nil {
		t.Fatalf("complete s3: %v", err)
	}

	page, err := store.ListTasks(ctx, storage.ListTasksQuery{Status: task.StatusInProgress})
	if err != nil {
		t.Fatalf("list in_progress: %v", err)
	}
	if page.Total != 2 || len(page.Records) != 2 {
		t.Fatalf("expected 2 in_progress sessions, got total=%d records=%d",
			page.Total, len(page.Records))
	}

	condition, err := filter.ParseTaskFilter(`status = "completed"`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	page, err = store.ListTasks(ctx, storage.ListTasksQuery{Filter: condition})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if page.Total != 1 || len(page.Records) != 1 || page.Records[0].StreamID != "s3" {
		t.Fatalf("expected only s3 completed, got %+v", page)
	}

	page, err = store.ListTasks(ctx, storage.ListTasksQuery{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if page.Total != 3 || len(page.Records) != 1 {
		t.Fatalf("expected total 3 with one-record page, got total=%d records=%d",
			page.Total, len(page.Records))
	}
}

func TestAppendEnqueuesOutboxEntries(t *testing.T) {
	ctx := context.Background()
	policy := outbox.NewPolicy(nil)
	store := openStore(t,
		WithProjection(projection.Apply),
		WithOutboxPolicy(policy.Entries),
		WithDefaultChannel("C-default"),
	)

	// A full run enqueues a start notification, nothing for the progress
	// update, and a completion notification plus reaction.
	if _, err := store.AppendEvents(ctx, "s1", -1, []event.Event{startedEvent(t, "T")}); err != nil {
		t.Fatalf("append started: %v", err)
	}
	if _, err := store.AppendEvents(ctx, "s1", 0, []event.Event{
		typedEvent(t, event.TypeTaskUpdated, task.ProgressPayload{Summary: "halfway"}),
	}); err != nil {
		t.Fatalf("append updated: %v", err)
	}
	if _, err := store.AppendEvents(ctx, "s1", 1, []event.Event{
		typedEvent(t, event.TypeTaskCompleted, task.CompletePayload{}),
	}); err != nil {
		t.Fatalf("append completed: %v", err)
	}

	entries, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 pending entries, got %d", len(entries))
	}
	if entries[0].Policy != storage.PolicyNotify || entries[0].EventVersion != 0 {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Policy != storage.PolicyNotify || entries[1].EventVersion != 2 {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	if entries[2].Policy != storage.PolicyReaction || entries[2].EventVersion != 2 {
		t.Fatalf("unexpected third entry %+v", entries[2])
	}

	var payload outbox.NotifyPayload
	if err := json.Unmarshal(entries[0].PayloadJSON, &payload); err != nil {
		t.Fatalf("decode notify payload: %v", err)
	}
	if payload.Channel != "C-default" || payload.Message == "" {
		t.Fatalf("unexpected notify payload %+v", payload)
	}
}

func TestOutboxMarkOperations(t *testing.T) {
	ctx := context.Background()
	policy := outbox.NewPolicy(nil)
	store := openStore(t,
		WithProjection(projection.Apply),
		WithOutboxPolicy(policy.Entries),
		WithDefaultChannel("C-default"),
	)

	if _, err := store.AppendEvents(ctx, "s1", -1, []event.Event{startedEvent(t, "T")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	entries, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one pending entry, got %d", len(entries))
	}
	id := entries[0].ID

	// A retryable failure keeps the entry pending with the error recorded.
	if err := store.RecordOutboxAttempt(ctx, id, "ratelimited"); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	entries, err = store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list after attempt: %v", err)
	}
	if len(entries) != 1 || entries[0].AttemptCount != 1 || entries[0].LastError != "ratelimited" {
		t.Fatalf("expected pending entry with recorded attempt, got %+v", entries)
	}

	if err := store.MarkOutboxProcessed(ctx, id, "C1", "111.222"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	entries, err = store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list after processed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no pending entries, got %d", len(entries))
	}

	var status, channel, threadTS string
	var processedAt int64
	row := store.sqlDB.QueryRow(
		"SELECT status, channel, thread_ts, processed_at FROM outbox WHERE id = ?", id)
	if err := row.Scan(&status, &channel, &threadTS, &processedAt); err != nil {
		t.Fatalf("read entry row: %v", err)
	}
	if status != string(storage.OutboxStatusProcessed) || channel != "C1" || threadTS != "111.222" || processedAt == 0 {
		t.Fatalf("unexpected finalized row %s/%s/%s/%d", status, channel, threadTS, processedAt)
	}
}

func TestOutboxMarkFailedTerminal(t *testing.T) {
	ctx := context.Background()
	policy := outbox.NewPolicy(nil)
	store := openStore(t,
		WithProjection(projection.Apply),
		WithOutboxPolicy(policy.Entries),
		WithDefaultChannel("C-default"),
	)

	if _, err := store.AppendEvents(ctx, "s1", -1, []event.Event{startedEvent(t, "T")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	entries, err := store.ListPendingOutbox(ctx, 10)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one pending entry, got %d (%v)", len(entries), err)
	}

	if err := store.MarkOutboxFailed(ctx, entries[0].ID, "no channel"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	entries, err = store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list after failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed entry still pending")
	}
}

func TestOutboxMarkMissingEntry(t *testing.T) {
	store := openStore(t)
	if err := store.MarkOutboxProcessed(context.Background(), 42, "C1", "111.222"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListEventsUpcastsLegacyRows(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	// A row written by the flat v1 schema, before issue references existed.
	if _, err := store.sqlDB.Exec(`
INSERT INTO events (stream_id, version, schema_version, event_type, occurred_at, actor_id, workspace_id, payload_json)
VALUES (?, ?, ?, ?, ?, '', '', ?)`,
		"legacy", 0, 1, string(event.TypeTaskStarted),
		toMillis(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)),
		`{"title":"Old task","summary":"carried over"}`,
	); err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	events, err := store.ListEvents(ctx, "legacy")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if events[0].SchemaVersion != event.CurrentSchemaVersion(event.TypeTaskStarted) {
		t.Fatalf("expected current schema version, got %d", events[0].SchemaVersion)
	}

	var payload task.StartPayload
	if err := json.Unmarshal(events[0].PayloadJSON, &payload); err != nil {
		t.Fatalf("decode upcast payload: %v", err)
	}
	if payload.Issue.Provider != "manual" || payload.Issue.Title != "Old task" || payload.InitialSummary != "carried over" {
		t.Fatalf("unexpected upcast payload %+v", payload)
	}
}
