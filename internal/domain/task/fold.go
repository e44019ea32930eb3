package task

import (
	"encoding/json"

	"github.com/relayforge/taskrelay/internal/domain/event"
)

// Fold applies an event to task-session state. It is pure and total: unknown
// payload fields are ignored and malformed payloads leave the affected fields
// at their zero values, never fail the fold.
func Fold(state State, evt event.Event) State {
	switch evt.Type {
	case event.TypeTaskStarted:
		var payload StartPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Started = true
		state.Status = StatusInProgress
		state.Issue = payload.Issue
		state.InitialSummary = payload.InitialSummary
		state.CreatedAt = evt.OccurredAt
	case event.TypeTaskUpdated:
		state.Status = StatusInProgress
	case event.TypeTaskBlocked:
		var payload BlockPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.UnresolvedBlocks = append(state.UnresolvedBlocks, BlockRecord{
			ID:         payload.BlockReportID,
			Reason:     payload.Reason,
			ReportedAt: evt.OccurredAt,
		})
		state.Status = StatusBlocked
	case event.TypeBlockResolved:
		var payload BlockResolvedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		remaining := state.UnresolvedBlocks[:0:0]
		for _, block := range state.UnresolvedBlocks {
			if block.ID != payload.BlockReportID {
				remaining = append(remaining, block)
			}
		}
		state.UnresolvedBlocks = remaining
		if len(remaining) == 0 {
			state.Status = StatusInProgress
		} else {
			state.Status = StatusBlocked
		}
	case event.TypeTaskPaused:
		var payload PausePayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Status = StatusPaused
		state.LastPauseID = payload.PauseReportID
	case event.TypeTaskResumed:
		state.Status = StatusInProgress
	case event.TypeTaskCompleted:
		state.Status = StatusCompleted
	case event.TypeTaskCancelled:
		state.Status = StatusCancelled
	case event.TypeSlackThreadLinked:
		// First write wins: a thread is linked at most once per stream.
		if state.Thread.IsZero() {
			var payload ThreadLinkedPayload
			_ = json.Unmarshal(evt.PayloadJSON, &payload)
			state.Thread = ThreadRef{Channel: payload.Channel, ThreadTS: payload.ThreadTS}
		}
	}
	if !evt.OccurredAt.IsZero() {
		state.UpdatedAt = evt.OccurredAt
	}
	return state
}

// Replay folds a stream's full ordered history into state.
func Replay(streamID string, events []event.Event) State {
	return Apply(NewState(streamID), events)
}

// Apply folds events into an already-replayed state. It is used to avoid
// re-reading full history after an append: Replay(id, history+new) and
// Apply(Replay(id, history), new) always agree.
func Apply(state State, events []event.Event) State {
	for _, evt := range events {
		state = Fold(state, evt)
	}
	return state
}
