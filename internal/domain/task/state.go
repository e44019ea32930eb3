package task

import "time"

// IssueRef identifies the work item a task session was started for.
type IssueRef struct {
	// Provider is the origin system, "github" or "manual".
	Provider string `json:"provider"`
	// ID is the provider-side identifier, when one exists.
	ID string `json:"id,omitempty"`
	// Title is the human-readable issue title.
	Title string `json:"title"`
}

// ThreadRef is the notification-channel binding for a task session.
type ThreadRef struct {
	// Channel is the chat channel the session's messages post to.
	Channel string `json:"channel"`
	// ThreadTS is the chat-side thread identifier.
	ThreadTS string `json:"thread_ts"`
}

// IsZero reports whether no thread has been linked yet.
func (t ThreadRef) IsZero() bool {
	return t.Channel == "" && t.ThreadTS == ""
}

// BlockRecord is one unresolved block reported against a session.
type BlockRecord struct {
	ID         string    `json:"id"`
	Reason     string    `json:"reason"`
	ReportedAt time.Time `json:"reported_at"`
}

// State captures the replayed task-session aggregate used by the decider.
//
// It is always derived by folding the stream's events and is never stored
// directly. Invariant: Status is StatusBlocked if and only if
// UnresolvedBlocks is non-empty and the session has not reached a terminal
// status.
type State struct {
	// StreamID is the task session identifier.
	StreamID string
	// Started indicates whether task.started has been applied.
	Started bool
	// Status is the current lifecycle state gating what operations are legal.
	Status Status
	// Issue is the work item this session tracks.
	Issue IssueRef
	// InitialSummary is the summary text supplied at start.
	InitialSummary string
	// Thread is the linked notification thread, zero until the first
	// successful notify delivery binds one.
	Thread ThreadRef
	// UnresolvedBlocks holds reported blocks in report order.
	UnresolvedBlocks []BlockRecord
	// LastPauseID is the id of the most recent pause report, if any.
	LastPauseID string
	// CreatedAt is the task.started decision time.
	CreatedAt time.Time
	// UpdatedAt is the most recent event's decision time.
	UpdatedAt time.Time
}

// NewState returns the empty state a stream's history folds into.
func NewState(streamID string) State {
	return State{StreamID: streamID}
}

// HasBlock reports whether the given block report id is still unresolved.
func (s State) HasBlock(blockReportID string) bool {
	for _, block := range s.UnresolvedBlocks {
		if block.ID == blockReportID {
			return true
		}
	}
	return false
}

// BlockReasons lists the reasons of all unresolved blocks in report order.
func (s State) BlockReasons() []string {
	reasons := make([]string, 0, len(s.UnresolvedBlocks))
	for _, block := range s.UnresolvedBlocks {
		reasons = append(reasons, block.Reason)
	}
	return reasons
}
