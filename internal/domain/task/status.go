package task

import "strings"

// Status describes the task-session lifecycle label used by domain decisions.
type Status string

const (
	StatusUnspecified Status = ""
	StatusInProgress  Status = "in_progress"
	StatusBlocked     Status = "blocked"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

// transitionTargets enumerates the allowed targets from each source status.
// Terminal statuses map to an empty list.
var transitionTargets = map[Status][]Status{
	StatusInProgress: {StatusBlocked, StatusPaused, StatusCompleted, StatusCancelled},
	StatusBlocked:    {StatusInProgress, StatusPaused, StatusCancelled},
	StatusPaused:     {StatusInProgress, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// IsTerminal reports whether no lifecycle command can move the session further.
func IsTerminal(status Status) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// IsValidTransition reports whether the transition table permits from → to.
// Same-state transitions are always permitted (idempotent re-affirmation).
func IsValidTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, target := range transitionTargets[from] {
		if target == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the transition-table targets from the given status.
func AllowedTargets(from Status) []Status {
	return append([]Status(nil), transitionTargets[from]...)
}

// NormalizeStatusLabel canonicalizes external status labels.
func NormalizeStatusLabel(value string) (Status, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	switch trimmed {
	case "in_progress", "in-progress":
		return StatusInProgress, true
	case "blocked":
		return StatusBlocked, true
	case "paused":
		return StatusPaused, true
	case "completed":
		return StatusCompleted, true
	case "cancelled", "canceled":
		return StatusCancelled, true
	default:
		return "", false
	}
}
