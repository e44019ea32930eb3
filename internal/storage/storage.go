// Package storage defines the persistence boundary for the task-session
// write path: the append-only event journal, the queryable read model, and
// the notification outbox.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/relayforge/taskrelay/internal/domain/event"
	"github.com/relayforge/taskrelay/internal/domain/task"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict indicates an append lost the optimistic-concurrency
	// race: the stream's tail version moved past the expected version. The
	// caller reloads history and re-decides; the conflict is expected, not a
	// fault.
	ErrVersionConflict = errors.New("stream version conflict")
)

// TaskRecord is the flattened read-model snapshot of one task session. It is
// derived from the event journal by the projection and is never the source of
// truth.
type TaskRecord struct {
	StreamID             string
	Status               task.Status
	IssueProvider        string
	IssueID              string
	IssueTitle           string
	InitialSummary       string
	SlackChannel         string
	SlackThreadTS        string
	UnresolvedBlockCount int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SQLCondition is a WHERE-clause fragment with positional parameters,
// produced by the filter translation layer.
type SQLCondition struct {
	Clause string
	Params []any
}

// ListTasksQuery configures a read-model listing.
type ListTasksQuery struct {
	// Status restricts results to one lifecycle status when non-empty.
	Status task.Status
	// Limit caps the page size; zero applies the store default.
	Limit int
	// Filter is an optional translated filter expression.
	Filter SQLCondition
}

// TaskPage is one page of read-model records plus the unpaged total.
type TaskPage struct {
	Total   int
	Records []TaskRecord
}

// PolicyType identifies the side effect an outbox entry requests.
type PolicyType string

const (
	// PolicyNotify posts a message, creating the session thread on first
	// delivery.
	PolicyNotify PolicyType = "notify"
	// PolicyReaction adds an emoji reaction to the linked thread's root
	// message.
	PolicyReaction PolicyType = "reaction"
)

// OutboxStatus is the delivery lifecycle of an outbox entry.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxEntry is one durable notification intent. Entries are written in the
// same transaction as the events that produced them so a crash between commit
// and delivery cannot lose the intent.
type OutboxEntry struct {
	ID           int64
	StreamID     string
	EventVersion uint64
	Policy       PolicyType
	PayloadJSON  []byte
	Status       OutboxStatus
	AttemptCount int
	LastError    string
	// Channel and ThreadTS record the resolved delivery destination once an
	// outcome is known, for observability and idempotence.
	Channel     string
	ThreadTS    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// PolicyContext carries the delivery context available when outbox entries
// are derived from freshly committed events.
type PolicyContext struct {
	// DefaultChannel is the workspace's default notification channel.
	DefaultChannel string
	// ThreadChannel and ThreadTS hold the stream's linked thread, when one
	// exists at derivation time.
	ThreadChannel string
	ThreadTS      string
}

// ProjectionFunc folds one committed event into the read-model record.
type ProjectionFunc func(TaskRecord, event.Event) (TaskRecord, error)

// OutboxPolicyFunc derives the outbox entries a committed event produces.
type OutboxPolicyFunc func(event.Event, PolicyContext) []OutboxEntry

// EventStore is the append-only, per-stream event journal.
type EventStore interface {
	// ListEvents returns the stream's full ordered history, upcast to current
	// schema versions. An unknown stream yields an empty slice, not an error:
	// it signals "not yet started".
	ListEvents(ctx context.Context, streamID string) ([]event.Event, error)
	// AppendEvents appends events under an optimistic-concurrency guard.
	// expectedVersion is the stream's observed tail version, -1 for a new
	// stream. A stale expectation fails with ErrVersionConflict.
	AppendEvents(ctx context.Context, streamID string, expectedVersion int64, events []event.Event) ([]event.Event, error)
	// LatestVersion returns the stream's tail version, -1 when the stream has
	// no events.
	LatestVersion(ctx context.Context, streamID string) (int64, error)
}

// TaskReadModel queries the projected snapshot.
type TaskReadModel interface {
	GetTask(ctx context.Context, streamID string) (TaskRecord, error)
	ListTasks(ctx context.Context, query ListTasksQuery) (TaskPage, error)
}

// OutboxStore manages notification intents.
type OutboxStore interface {
	// ListPendingOutbox returns up to limit pending entries, oldest first.
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxEntry, error)
	// MarkOutboxProcessed finalizes a delivered entry with its resolved
	// destination. Processed entries are never revisited.
	MarkOutboxProcessed(ctx context.Context, id int64, channel, threadTS string) error
	// MarkOutboxFailed terminally fails an entry; it will not be retried.
	MarkOutboxFailed(ctx context.Context, id int64, reason string) error
	// RecordOutboxAttempt records a retryable delivery failure. The entry
	// stays pending for a later sweep.
	RecordOutboxAttempt(ctx context.Context, id int64, deliveryErr string) error
}

// Store is the full persistence surface the pipeline and drainer depend on.
type Store interface {
	EventStore
	TaskReadModel
	OutboxStore
}
