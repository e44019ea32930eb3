// Package projection derives the queryable task-session read model from
// committed events. Apply mirrors the task fold per event type but writes
// into the flattened persisted snapshot instead of the in-memory aggregate.
package projection

import (
	"encoding/json"
	"fmt"

	"github.com/relayforge/taskrelay/internal/domain/event"
	"github.com/relayforge/taskrelay/internal/domain/task"
	"github.com/relayforge/taskrelay/internal/storage"
)

// Apply folds one committed event into the read-model record. The record is
// created on task.started and updated by every other kind. Unlike the task
// fold, Apply fails loudly on malformed payloads so the read model can never
// silently drift from the event log.
func Apply(rec storage.TaskRecord, evt event.Event) (storage.TaskRecord, error) {
	switch evt.Type {
	case event.TypeTaskStarted:
		var payload task.StartPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return storage.TaskRecord{}, fmt.Errorf("decode %s payload: %w", evt.Type, err)
		}
		rec.StreamID = evt.StreamID
		rec.Status = task.StatusInProgress
		rec.IssueProvider = payload.Issue.Provider
		rec.IssueID = payload.Issue.ID
		rec.IssueTitle = payload.Issue.Title
		rec.InitialSummary = payload.InitialSummary
		rec.CreatedAt = evt.OccurredAt
		rec.UnresolvedBlockCount = 0

	case event.TypeTaskUpdated:
		rec.Status = task.StatusInProgress

	case event.TypeTaskBlocked:
		rec.Status = task.StatusBlocked
		rec.UnresolvedBlockCount++

	case event.TypeBlockResolved:
		if rec.UnresolvedBlockCount > 0 {
			rec.UnresolvedBlockCount--
		}
		if rec.UnresolvedBlockCount == 0 {
			rec.Status = task.StatusInProgress
		} else {
			rec.Status = task.StatusBlocked
		}

	case event.TypeTaskPaused:
		rec.Status = task.StatusPaused

	case event.TypeTaskResumed:
		rec.Status = task.StatusInProgress

	case event.TypeTaskCompleted:
		rec.Status = task.StatusCompleted

	case event.TypeTaskCancelled:
		rec.Status = task.StatusCancelled

	case event.TypeSlackThreadLinked:
		if rec.SlackChannel == "" && rec.SlackThreadTS == "" {
			var payload task.ThreadLinkedPayload
			if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
				return storage.TaskRecord{}, fmt.Errorf("decode %s payload: %w", evt.Type, err)
			}
			rec.SlackChannel = payload.Channel
			rec.SlackThreadTS = payload.ThreadTS
		}

	default:
		return storage.TaskRecord{}, fmt.Errorf("unhandled event type %q in projection", evt.Type)
	}

	if !evt.OccurredAt.IsZero() {
		rec.UpdatedAt = evt.OccurredAt
	}
	return rec, nil
}
