package notify

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/relayforge/taskrelay/internal/domain/event"
	"github.com/relayforge/taskrelay/internal/domain/task"
)

func renderEvent(t *testing.T, eventType event.Type, payload any) (string, bool) {
	t.Helper()
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return RenderEventMessage(NewLocalizer(), event.Event{
		StreamID:    "s1",
		Type:        eventType,
		OccurredAt:  time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		PayloadJSON: payloadJSON,
	})
}

func TestRenderStartedIncludesIssue(t *testing.T) {
	message, ok := renderEvent(t, event.TypeTaskStarted, task.StartPayload{
		Issue: task.IssueRef{Provider: "github", ID: "#42", Title: "Fix login"},
	})
	if !ok {
		t.Fatal("expected started to notify")
	}
	if !strings.Contains(message, "#42 Fix login") {
		t.Fatalf("expected issue id and title, got %q", message)
	}
}

func TestRenderStartedWithSummary(t *testing.T) {
	message, ok := renderEvent(t, event.TypeTaskStarted, task.StartPayload{
		Issue:          task.IssueRef{Provider: "manual", Title: "Fix login"},
		InitialSummary: "auth flow first",
	})
	if !ok {
		t.Fatal("expected started to notify")
	}
	if !strings.Contains(message, "*Fix login* - auth flow first") {
		t.Fatalf("expected title and summary joined with a plain dash, got %q", message)
	}
}

func TestRenderBlockedIncludesReason(t *testing.T) {
	message, ok := renderEvent(t, event.TypeTaskBlocked, task.BlockPayload{
		BlockReportID: "b1",
		Reason:        "waiting on review",
	})
	if !ok {
		t.Fatal("expected blocked to notify")
	}
	if !strings.Contains(message, "waiting on review") {
		t.Fatalf("expected block reason, got %q", message)
	}
}

func TestRenderCompletedListsUnresolvedBlocks(t *testing.T) {
	message, ok := renderEvent(t, event.TypeTaskCompleted, task.CompletePayload{
		Summary: "shipped",
		UnresolvedBlocks: []task.BlockRecord{
			{ID: "b1", Reason: "flaky CI"},
			{ID: "b2", Reason: "missing docs"},
		},
	})
	if !ok {
		t.Fatal("expected completed to notify")
	}
	if !strings.Contains(message, "shipped") {
		t.Fatalf("expected summary, got %q", message)
	}
	if !strings.Contains(message, "flaky CI; missing docs") {
		t.Fatalf("expected joined block reasons, got %q", message)
	}
}

func TestRenderCancelledWithAndWithoutReason(t *testing.T) {
	message, ok := renderEvent(t, event.TypeTaskCancelled, task.CancelPayload{Reason: "superseded"})
	if !ok || !strings.Contains(message, "superseded") {
		t.Fatalf("expected cancellation reason, got %q (ok=%v)", message, ok)
	}

	message, ok = renderEvent(t, event.TypeTaskCancelled, task.CancelPayload{})
	if !ok || message == "" {
		t.Fatalf("expected bare cancellation message, got %q (ok=%v)", message, ok)
	}
}

func TestRenderSilentEventKinds(t *testing.T) {
	for _, eventType := range []event.Type{event.TypeTaskUpdated, event.TypeSlackThreadLinked} {
		if message, ok := renderEvent(t, eventType, struct{}{}); ok {
			t.Fatalf("expected %s to stay silent, got %q", eventType, message)
		}
	}
}

func TestRenderCoversEveryNotifyingKind(t *testing.T) {
	silent := map[event.Type]bool{
		event.TypeTaskUpdated:       true,
		event.TypeSlackThreadLinked: true,
	}
	for _, eventType := range event.Types {
		message, ok := renderEvent(t, eventType, struct{}{})
		if silent[eventType] {
			if ok {
				t.Fatalf("expected %s silent, got %q", eventType, message)
			}
			continue
		}
		if !ok || message == "" {
			t.Fatalf("expected %s to render a message", eventType)
		}
	}
}
