package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/relayforge/taskrelay/internal/storage"
)

const defaultDrainLimit = 50

// ListPendingOutbox returns up to limit pending entries, oldest first.
func (s *Store) ListPendingOutbox(ctx context.Context, limit int) ([]storage.OutboxEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = defaultDrainLimit
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, stream_id, event_version, policy, payload_json, status, attempt_count,
       last_error, channel, thread_ts, created_at, updated_at, processed_at
FROM outbox
WHERE status = ?
ORDER BY id ASC
LIMIT ?`, string(storage.OutboxStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", err)
	}
	defer rows.Close()

	var entries []storage.OutboxEntry
	for rows.Next() {
		var entry storage.OutboxEntry
		var eventVersion int64
		var policy, status, payload string
		var createdAt, updatedAt int64
		var processedAt sql.NullInt64
		if err := rows.Scan(
			&entry.ID,
			&entry.StreamID,
			&eventVersion,
			&policy,
			&payload,
			&status,
			&entry.AttemptCount,
			&entry.LastError,
			&entry.Channel,
			&entry.ThreadTS,
			&createdAt,
			&updatedAt,
			&processedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entry.EventVersion = uint64(eventVersion)
		entry.Policy = storage.PolicyType(policy)
		entry.Status = storage.OutboxStatus(status)
		entry.PayloadJSON = []byte(payload)
		entry.CreatedAt = fromMillis(createdAt)
		entry.UpdatedAt = fromMillis(updatedAt)
		if processedAt.Valid {
			t := fromMillis(processedAt.Int64)
			entry.ProcessedAt = &t
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read outbox entries: %w", err)
	}
	return entries, nil
}

// MarkOutboxProcessed finalizes a delivered entry with its resolved
// destination.
func (s *Store) MarkOutboxProcessed(ctx context.Context, id int64, channel, threadTS string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	now := toMillis(time.Now().UTC())
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE outbox
SET status = ?, channel = ?, thread_ts = ?, processed_at = ?, updated_at = ?
WHERE id = ?`,
		string(storage.OutboxStatusProcessed), channel, threadTS, now, now, id)
	if err != nil {
		return fmt.Errorf("mark outbox processed: %w", err)
	}
	return requireOutboxRow(result, id)
}

// MarkOutboxFailed terminally fails an entry.
func (s *Store) MarkOutboxFailed(ctx context.Context, id int64, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	now := toMillis(time.Now().UTC())
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE outbox
SET status = ?, last_error = ?, attempt_count = attempt_count + 1, updated_at = ?
WHERE id = ?`,
		string(storage.OutboxStatusFailed), reason, now, id)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return requireOutboxRow(result, id)
}

// RecordOutboxAttempt records a retryable delivery failure; the entry stays
// pending.
func (s *Store) RecordOutboxAttempt(ctx context.Context, id int64, deliveryErr string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	now := toMillis(time.Now().UTC())
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE outbox
SET last_error = ?, attempt_count = attempt_count + 1, updated_at = ?
WHERE id = ?`,
		deliveryErr, now, id)
	if err != nil {
		return fmt.Errorf("record outbox attempt: %w", err)
	}
	return requireOutboxRow(result, id)
}

func requireOutboxRow(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check outbox update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("outbox entry %d: %w", id, storage.ErrNotFound)
	}
	return nil
}
