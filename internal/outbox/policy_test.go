package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/relayforge/taskrelay/internal/domain/event"
	"github.com/relayforge/taskrelay/internal/domain/task"
	"github.com/relayforge/taskrelay/internal/notify"
	"github.com/relayforge/taskrelay/internal/storage"
)

func mustJSON(t *testing.T, value any) []byte {
	t.Helper()
	payload, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func testEvent(t *testing.T, eventType event.Type, payload any) event.Event {
	t.Helper()
	return event.Event{
		StreamID:    "s1",
		Version:     3,
		Type:        eventType,
		OccurredAt:  time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		PayloadJSON: mustJSON(t, payload),
	}
}

func TestEntriesPerEventType(t *testing.T) {
	policy := NewPolicy(notify.NewLocalizer())
	pctx := storage.PolicyContext{DefaultChannel: "C-default"}

	tests := []struct {
		eventType event.Type
		payload   any
		want      int
	}{
		{event.TypeTaskStarted, task.StartPayload{Issue: task.IssueRef{Provider: "manual", Title: "T"}}, 1},
		{event.TypeTaskUpdated, task.ProgressPayload{Summary: "x"}, 0},
		{event.TypeTaskBlocked, task.BlockPayload{BlockReportID: "b1", Reason: "r"}, 1},
		{event.TypeBlockResolved, task.BlockResolvedPayload{BlockReportID: "b1"}, 1},
		{event.TypeTaskPaused, task.PausePayload{PauseReportID: "p1"}, 1},
		{event.TypeTaskResumed, task.ResumePayload{}, 1},
		{event.TypeTaskCompleted, task.CompletePayload{Summary: "done"}, 2},
		{event.TypeTaskCancelled, task.CancelPayload{}, 1},
		{event.TypeSlackThreadLinked, task.ThreadLinkedPayload{Channel: "C1", ThreadTS: "1.2"}, 0},
	}
	for _, tt := range tests {
		entries := policy.Entries(testEvent(t, tt.eventType, tt.payload), pctx)
		if len(entries) != tt.want {
			t.Fatalf("%s: expected %d entries, got %d", tt.eventType, tt.want, len(entries))
		}
	}
}

func TestEntriesCompletedShapes(t *testing.T) {
	policy := NewPolicy(notify.NewLocalizer())
	entries := policy.Entries(
		testEvent(t, event.TypeTaskCompleted, task.CompletePayload{Summary: "done"}),
		storage.PolicyContext{DefaultChannel: "C-default", ThreadChannel: "C1", ThreadTS: "111.222"},
	)
	if len(entries) != 2 {
		t.Fatalf("expected notify + reaction, got %d entries", len(entries))
	}
	if entries[0].Policy != storage.PolicyNotify || entries[1].Policy != storage.PolicyReaction {
		t.Fatalf("unexpected policy order: %s, %s", entries[0].Policy, entries[1].Policy)
	}
	for _, entry := range entries {
		if entry.StreamID != "s1" || entry.EventVersion != 3 {
			t.Fatalf("entry missing event provenance: %+v", entry)
		}
		if entry.Status != storage.OutboxStatusPending {
			t.Fatalf("expected pending status, got %s", entry.Status)
		}
	}

	var notifyPayload NotifyPayload
	if err := json.Unmarshal(entries[0].PayloadJSON, &notifyPayload); err != nil {
		t.Fatalf("decode notify payload: %v", err)
	}
	if notifyPayload.Channel != "C1" || notifyPayload.ThreadTS != "111.222" {
		t.Fatalf("expected thread destination, got %+v", notifyPayload)
	}
	if notifyPayload.Message == "" {
		t.Fatalf("expected rendered message")
	}

	var reactionPayload ReactionPayload
	if err := json.Unmarshal(entries[1].PayloadJSON, &reactionPayload); err != nil {
		t.Fatalf("decode reaction payload: %v", err)
	}
	if reactionPayload.Channel != "C1" || reactionPayload.Timestamp != "111.222" {
		t.Fatalf("expected reaction on thread root, got %+v", reactionPayload)
	}
	if reactionPayload.Emoji != notify.CompletionEmoji {
		t.Fatalf("expected %s emoji, got %s", notify.CompletionEmoji, reactionPayload.Emoji)
	}
}

func TestEntriesWithoutThreadUseDefaultChannel(t *testing.T) {
	policy := NewPolicy(notify.NewLocalizer())
	entries := policy.Entries(
		testEvent(t, event.TypeTaskStarted, task.StartPayload{Issue: task.IssueRef{Provider: "manual", Title: "T"}}),
		storage.PolicyContext{DefaultChannel: "C-default"},
	)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}

	var payload NotifyPayload
	if err := json.Unmarshal(entries[0].PayloadJSON, &payload); err != nil {
		t.Fatalf("decode notify payload: %v", err)
	}
	if payload.Channel != "C-default" || payload.ThreadTS != "" {
		t.Fatalf("expected thread-less default channel, got %+v", payload)
	}
}

func TestFullRunEnqueuesThreeEntries(t *testing.T) {
	policy := NewPolicy(notify.NewLocalizer())
	pctx := storage.PolicyContext{DefaultChannel: "C-default"}

	var total []storage.OutboxEntry
	total = append(total, policy.Entries(
		testEvent(t, event.TypeTaskStarted, task.StartPayload{Issue: task.IssueRef{Provider: "manual", Title: "T"}}), pctx)...)
	total = append(total, policy.Entries(
		testEvent(t, event.TypeTaskUpdated, task.ProgressPayload{Summary: "x"}), pctx)...)
	total = append(total, policy.Entries(
		testEvent(t, event.TypeTaskCompleted, task.CompletePayload{Summary: "done"}), pctx)...)

	if len(total) != 3 {
		t.Fatalf("expected 3 entries for start+update+complete, got %d", len(total))
	}
}
