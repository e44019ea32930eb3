package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/relayforge/taskrelay/internal/domain/event"
	"github.com/relayforge/taskrelay/internal/storage"
)

// ListEvents returns the stream's ordered history, upcast to current schema
// versions. An unknown stream yields an empty history.
func (s *Store) ListEvents(ctx context.Context, streamID string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT stream_id, version, schema_version, event_type, occurred_at, actor_id, workspace_id, payload_json
FROM events
WHERE stream_id = ?
ORDER BY version ASC`, streamID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		upcast, err := s.upcaster.Upcast(evt)
		if err != nil {
			return nil, fmt.Errorf("upcast event %s v%d: %w", evt.StreamID, evt.Version, err)
		}
		events = append(events, upcast)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// LatestVersion returns the stream's tail version, -1 when the stream has no
// events.
func (s *Store) LatestVersion(ctx context.Context, streamID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	return tailVersion(ctx, s.sqlDB, streamID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tailVersion(ctx context.Context, q querier, streamID string) (int64, error) {
	var tail int64
	row := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), -1) FROM events WHERE stream_id = ?", streamID)
	if err := row.Scan(&tail); err != nil {
		return 0, fmt.Errorf("load stream tail: %w", err)
	}
	return tail, nil
}

// AppendEvents atomically appends events under an optimistic-concurrency
// guard, folds each into the task read model, and enqueues the outbox entries
// each event derives. Everything commits or nothing does, so the read model
// and the notification intent can never diverge from the journal.
func (s *Store) AppendEvents(ctx context.Context, streamID string, expectedVersion int64, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if streamID == "" {
		return nil, fmt.Errorf("stream id is required")
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("at least one event is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	tail, err := tailVersion(ctx, tx, streamID)
	if err != nil {
		return nil, err
	}
	if tail != expectedVersion {
		return nil, fmt.Errorf("stream %s at version %d, expected %d: %w",
			streamID, tail, expectedVersion, storage.ErrVersionConflict)
	}

	record, recordExists, err := loadTaskRecordTx(ctx, tx, streamID)
	if err != nil {
		return nil, err
	}

	appended := make([]event.Event, 0, len(events))
	var outboxEntries []storage.OutboxEntry
	for i, evt := range events {
		if evt.StreamID == "" {
			evt.StreamID = streamID
		}
		if evt.StreamID != streamID {
			return nil, fmt.Errorf("event stream %s does not match append stream %s", evt.StreamID, streamID)
		}

		normalized, err := event.NormalizeForAppend(evt)
		if err != nil {
			return nil, fmt.Errorf("normalize event: %w", err)
		}
		normalized.Version = uint64(expectedVersion + 1 + int64(i))

		if _, err := tx.ExecContext(ctx, `
INSERT INTO events (stream_id, version, schema_version, event_type, occurred_at, actor_id, workspace_id, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			normalized.StreamID,
			int64(normalized.Version),
			normalized.SchemaVersion,
			string(normalized.Type),
			toMillis(normalized.OccurredAt),
			normalized.ActorID,
			normalized.WorkspaceID,
			string(normalized.PayloadJSON),
		); err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}

		if s.projection != nil {
			record, err = s.projection(record, normalized)
			if err != nil {
				return nil, fmt.Errorf("project event %s v%d: %w", normalized.StreamID, normalized.Version, err)
			}
		}

		if s.outboxPolicy != nil {
			pctx := storage.PolicyContext{
				DefaultChannel: s.defaultChannel,
				ThreadChannel:  record.SlackChannel,
				ThreadTS:       record.SlackThreadTS,
			}
			outboxEntries = append(outboxEntries, s.outboxPolicy(normalized, pctx)...)
		}

		appended = append(appended, normalized)
	}

	if s.projection != nil {
		if err := upsertTaskRecordTx(ctx, tx, record, recordExists); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	for _, entry := range outboxEntries {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO outbox (stream_id, event_version, policy, payload_json, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entry.StreamID,
			int64(entry.EventVersion),
			string(entry.Policy),
			string(entry.PayloadJSON),
			string(storage.OutboxStatusPending),
			toMillis(now),
			toMillis(now),
		); err != nil {
			return nil, fmt.Errorf("enqueue outbox entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return appended, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var evt event.Event
	var version int64
	var eventType string
	var occurredAt int64
	var payload string
	if err := row.Scan(
		&evt.StreamID,
		&version,
		&evt.SchemaVersion,
		&eventType,
		&occurredAt,
		&evt.ActorID,
		&evt.WorkspaceID,
		&payload,
	); err != nil {
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}
	evt.Version = uint64(version)
	evt.Type = event.Type(eventType)
	evt.OccurredAt = fromMillis(occurredAt)
	evt.PayloadJSON = []byte(payload)
	return evt, nil
}
