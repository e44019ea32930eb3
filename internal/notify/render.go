package notify

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/relayforge/taskrelay/internal/domain/event"
	"github.com/relayforge/taskrelay/internal/domain/task"
)

// CompletionEmoji is the reaction added to a session's thread root when the
// task completes.
const CompletionEmoji = "white_check_mark"

// Localizer is the minimal message-printer contract required by rendering.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// NewLocalizer returns the default English message printer.
func NewLocalizer() Localizer {
	return message.NewPrinter(language.English)
}

// RenderEventMessage returns the chat message for a lifecycle event. The
// second return is false for event kinds that do not notify.
func RenderEventMessage(loc Localizer, evt event.Event) (string, bool) {
	switch evt.Type {
	case event.TypeTaskStarted:
		var payload task.StartPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		title := payload.Issue.Title
		if payload.Issue.ID != "" {
			title = payload.Issue.ID + " " + title
		}
		if payload.InitialSummary != "" {
			return loc.Sprintf("task.started.with_summary", title, payload.InitialSummary), true
		}
		return loc.Sprintf("task.started", title), true
	case event.TypeTaskBlocked:
		var payload task.BlockPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		return loc.Sprintf("task.blocked", payload.Reason), true
	case event.TypeBlockResolved:
		return loc.Sprintf("task.block_resolved"), true
	case event.TypeTaskPaused:
		var payload task.PausePayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		if payload.Reason != "" {
			return loc.Sprintf("task.paused.with_reason", payload.Reason), true
		}
		return loc.Sprintf("task.paused"), true
	case event.TypeTaskResumed:
		var payload task.ResumePayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		if payload.Summary != "" {
			return loc.Sprintf("task.resumed.with_summary", payload.Summary), true
		}
		return loc.Sprintf("task.resumed"), true
	case event.TypeTaskCompleted:
		var payload task.CompletePayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		if len(payload.UnresolvedBlocks) > 0 {
			reasons := make([]string, 0, len(payload.UnresolvedBlocks))
			for _, block := range payload.UnresolvedBlocks {
				reasons = append(reasons, block.Reason)
			}
			return loc.Sprintf("task.completed.with_blocks", payload.Summary, strings.Join(reasons, "; ")), true
		}
		return loc.Sprintf("task.completed", payload.Summary), true
	case event.TypeTaskCancelled:
		var payload task.CancelPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		if payload.Reason != "" {
			return loc.Sprintf("task.cancelled.with_reason", payload.Reason), true
		}
		return loc.Sprintf("task.cancelled"), true
	}
	return "", false
}
