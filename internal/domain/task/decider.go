package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/relayforge/taskrelay/internal/domain/command"
	"github.com/relayforge/taskrelay/internal/domain/event"
)

const (
	RejectionCodeNotStarted       = "TASK_NOT_STARTED"
	RejectionCodeAlreadyStarted   = "TASK_ALREADY_STARTED"
	RejectionCodeUnresolvedBlocks = "TASK_HAS_UNRESOLVED_BLOCKS"
	RejectionCodeStatusTransition = "TASK_INVALID_STATUS_TRANSITION"
	RejectionCodeBlockNotFound    = "TASK_BLOCK_NOT_FOUND"
	RejectionCodeIssueTitleEmpty  = "TASK_ISSUE_TITLE_EMPTY"
	RejectionCodeProviderInvalid  = "TASK_ISSUE_PROVIDER_INVALID"
	RejectionCodeReasonEmpty      = "TASK_BLOCK_REASON_EMPTY"
	RejectionCodeReportIDEmpty    = "TASK_REPORT_ID_EMPTY"
	RejectionCodeUnknownCommand   = "TASK_UNKNOWN_COMMAND"
)

// Decide returns the decision for a task-session command against current
// state. It performs no I/O: identifiers arrive inside the command payload
// and the decision timestamp comes from the injected clock.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}

	if cmd.Type == command.TypeStartTask {
		if state.Started {
			return command.Reject(command.Rejection{
				Code:    RejectionCodeAlreadyStarted,
				Message: "Task session already started",
			})
		}
		var payload StartPayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		normalizedProvider, ok := normalizeProviderLabel(payload.Issue.Provider)
		if !ok {
			return command.Reject(command.Rejection{
				Code:    RejectionCodeProviderInvalid,
				Message: fmt.Sprintf("Unknown issue provider %q: expected github or manual", payload.Issue.Provider),
			})
		}
		normalizedTitle := strings.TrimSpace(payload.Issue.Title)
		if normalizedTitle == "" {
			return command.Reject(command.Rejection{
				Code:    RejectionCodeIssueTitleEmpty,
				Message: "Issue title is required",
			})
		}

		normalized := StartPayload{
			Issue: IssueRef{
				Provider: normalizedProvider,
				ID:       strings.TrimSpace(payload.Issue.ID),
				Title:    normalizedTitle,
			},
			InitialSummary: strings.TrimSpace(payload.InitialSummary),
		}
		payloadJSON, _ := json.Marshal(normalized)
		return command.Accept(command.NewEvent(cmd, event.TypeTaskStarted, payloadJSON, now().UTC()))
	}

	// Every other command requires an already-started stream.
	if !state.Started {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeNotStarted,
			Message: "Task session not found",
		})
	}

	switch cmd.Type {
	case command.TypeAddProgress:
		if len(state.UnresolvedBlocks) > 0 {
			return rejectUnresolvedBlocks(state)
		}
		if rejection, ok := checkTransition(state.Status, StatusInProgress); !ok {
			return command.Reject(rejection)
		}
		var payload ProgressPayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		payloadJSON, _ := json.Marshal(ProgressPayload{Summary: strings.TrimSpace(payload.Summary)})
		return command.Accept(command.NewEvent(cmd, event.TypeTaskUpdated, payloadJSON, now().UTC()))

	case command.TypeReportBlock:
		if rejection, ok := checkTransition(state.Status, StatusBlocked); !ok {
			return command.Reject(rejection)
		}
		var payload BlockPayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		reason := strings.TrimSpace(payload.Reason)
		if reason == "" {
			return command.Reject(command.Rejection{
				Code:    RejectionCodeReasonEmpty,
				Message: "Block reason is required",
			})
		}
		reportID := strings.TrimSpace(payload.BlockReportID)
		if reportID == "" {
			return command.Reject(command.Rejection{
				Code:    RejectionCodeReportIDEmpty,
				Message: "Block report id is required",
			})
		}
		payloadJSON, _ := json.Marshal(BlockPayload{BlockReportID: reportID, Reason: reason})
		return command.Accept(command.NewEvent(cmd, event.TypeTaskBlocked, payloadJSON, now().UTC()))

	case command.TypeResolveBlock:
		var payload BlockResolvedPayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		reportID := strings.TrimSpace(payload.BlockReportID)

		// Target depends on what remains after removal: resolving the last
		// block recovers to in_progress, otherwise the session stays blocked.
		target := StatusInProgress
		remaining := len(state.UnresolvedBlocks)
		if state.HasBlock(reportID) {
			remaining--
		}
		if remaining > 0 {
			target = StatusBlocked
		}
		if rejection, ok := checkTransition(state.Status, target); !ok {
			return command.Reject(rejection)
		}
		if !state.HasBlock(reportID) {
			return command.Reject(command.Rejection{
				Code:    RejectionCodeBlockNotFound,
				Message: "Block not found or already resolved",
			})
		}
		payloadJSON, _ := json.Marshal(BlockResolvedPayload{BlockReportID: reportID})
		return command.Accept(command.NewEvent(cmd, event.TypeBlockResolved, payloadJSON, now().UTC()))

	case command.TypePauseTask:
		if rejection, ok := checkTransition(state.Status, StatusPaused); !ok {
			return command.Reject(rejection)
		}
		var payload PausePayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		reportID := strings.TrimSpace(payload.PauseReportID)
		if reportID == "" {
			return command.Reject(command.Rejection{
				Code:    RejectionCodeReportIDEmpty,
				Message: "Pause report id is required",
			})
		}
		payloadJSON, _ := json.Marshal(PausePayload{
			PauseReportID: reportID,
			Reason:        strings.TrimSpace(payload.Reason),
		})
		return command.Accept(command.NewEvent(cmd, event.TypeTaskPaused, payloadJSON, now().UTC()))

	case command.TypeResumeTask:
		if len(state.UnresolvedBlocks) > 0 {
			return rejectUnresolvedBlocks(state)
		}
		if rejection, ok := checkTransition(state.Status, StatusInProgress); !ok {
			return command.Reject(rejection)
		}
		var payload ResumePayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		payloadJSON, _ := json.Marshal(ResumePayload{Summary: strings.TrimSpace(payload.Summary)})
		return command.Accept(command.NewEvent(cmd, event.TypeTaskResumed, payloadJSON, now().UTC()))

	case command.TypeCompleteTask:
		// Completion is the emergency exit: it bypasses the transition table
		// so a blocked session can still be closed out, but never restarts a
		// terminal one. Unresolved blocks are reported on the event, not
		// required to be resolved first.
		if IsTerminal(state.Status) {
			return command.Reject(invalidTransitionRejection(state.Status, StatusCompleted))
		}
		var payload CompletePayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		payloadJSON, _ := json.Marshal(CompletePayload{
			Summary:          strings.TrimSpace(payload.Summary),
			UnresolvedBlocks: append([]BlockRecord(nil), state.UnresolvedBlocks...),
		})
		return command.Accept(command.NewEvent(cmd, event.TypeTaskCompleted, payloadJSON, now().UTC()))

	case command.TypeCancelTask:
		if rejection, ok := checkTransition(state.Status, StatusCancelled); !ok {
			return command.Reject(rejection)
		}
		var payload CancelPayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		payloadJSON, _ := json.Marshal(CancelPayload{Reason: strings.TrimSpace(payload.Reason)})
		return command.Accept(command.NewEvent(cmd, event.TypeTaskCancelled, payloadJSON, now().UTC()))
	}

	// An unhandled command type must never read as a successful no-op.
	return command.Reject(command.Rejection{
		Code:    RejectionCodeUnknownCommand,
		Message: fmt.Sprintf("Unknown command type %q", cmd.Type),
	})
}

// checkTransition validates a lifecycle move. Terminal states reject every
// command, including same-state re-affirmations, so finished sessions stay
// finished.
func checkTransition(from, to Status) (command.Rejection, bool) {
	if IsTerminal(from) || !IsValidTransition(from, to) {
		return invalidTransitionRejection(from, to), false
	}
	return command.Rejection{}, true
}

func invalidTransitionRejection(from, to Status) command.Rejection {
	targets := AllowedTargets(from)
	labels := make([]string, 0, len(targets))
	for _, target := range targets {
		labels = append(labels, string(target))
	}
	return command.Rejection{
		Code: RejectionCodeStatusTransition,
		Message: fmt.Sprintf("Invalid status transition: %s → %s. Allowed transitions from %s: [%s]",
			from, to, from, strings.Join(labels, ", ")),
	}
}

func rejectUnresolvedBlocks(state State) command.Decision {
	return command.Reject(command.Rejection{
		Code:    RejectionCodeUnresolvedBlocks,
		Message: "Task has unresolved blocks: " + strings.Join(state.BlockReasons(), "; "),
	})
}

// normalizeProviderLabel canonicalizes issue provider labels. Empty input
// defaults to manual.
func normalizeProviderLabel(value string) (string, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	switch trimmed {
	case "":
		return "manual", true
	case "manual", "github":
		return trimmed, true
	default:
		return "", false
	}
}
