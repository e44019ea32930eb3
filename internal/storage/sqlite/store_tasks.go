package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/relayforge/taskrelay/internal/domain/task"
	"github.com/relayforge/taskrelay/internal/storage"
)

const defaultListLimit = 50

// GetTask returns the projected read-model record for one task session.
func (s *Store) GetTask(ctx context.Context, streamID string) (storage.TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TaskRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TaskRecord{}, fmt.Errorf("storage is not configured")
	}

	record, exists, err := loadTaskRecord(ctx, s.sqlDB, streamID)
	if err != nil {
		return storage.TaskRecord{}, err
	}
	if !exists {
		return storage.TaskRecord{}, fmt.Errorf("task session %s: %w", streamID, storage.ErrNotFound)
	}
	return record, nil
}

// ListTasks returns one page of read-model records plus the unpaged total.
func (s *Store) ListTasks(ctx context.Context, query storage.ListTasksQuery) (storage.TaskPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.TaskPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TaskPage{}, fmt.Errorf("storage is not configured")
	}

	var conditions []string
	var params []any
	if query.Status != "" {
		conditions = append(conditions, "status = ?")
		params = append(params, string(query.Status))
	}
	if strings.TrimSpace(query.Filter.Clause) != "" {
		conditions = append(conditions, "("+query.Filter.Clause+")")
		params = append(params, query.Filter.Params...)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	row := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM task_sessions"+where, params...)
	if err := row.Scan(&total); err != nil {
		return storage.TaskPage{}, fmt.Errorf("count task sessions: %w", err)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	listParams := append(append([]any{}, params...), limit)
	rows, err := s.sqlDB.QueryContext(ctx,
		taskRecordColumns+where+" ORDER BY created_at DESC, stream_id ASC LIMIT ?", listParams...)
	if err != nil {
		return storage.TaskPage{}, fmt.Errorf("list task sessions: %w", err)
	}
	defer rows.Close()

	page := storage.TaskPage{Total: total}
	for rows.Next() {
		record, err := scanTaskRecord(rows)
		if err != nil {
			return storage.TaskPage{}, err
		}
		page.Records = append(page.Records, record)
	}
	if err := rows.Err(); err != nil {
		return storage.TaskPage{}, fmt.Errorf("read task sessions: %w", err)
	}
	return page, nil
}

const taskRecordColumns = `
SELECT stream_id, status, issue_provider, issue_id, issue_title, initial_summary,
       slack_channel, slack_thread_ts, unresolved_block_count, created_at, updated_at
FROM task_sessions`

type taskQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadTaskRecord(ctx context.Context, q taskQuerier, streamID string) (storage.TaskRecord, bool, error) {
	row := q.QueryRowContext(ctx, taskRecordColumns+" WHERE stream_id = ?", streamID)
	record, err := scanTaskRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TaskRecord{}, false, nil
		}
		return storage.TaskRecord{}, false, err
	}
	return record, true, nil
}

func loadTaskRecordTx(ctx context.Context, tx *sql.Tx, streamID string) (storage.TaskRecord, bool, error) {
	return loadTaskRecord(ctx, tx, streamID)
}

func upsertTaskRecordTx(ctx context.Context, tx *sql.Tx, record storage.TaskRecord, exists bool) error {
	if record.StreamID == "" {
		return nil
	}
	if !exists {
		_, err := tx.ExecContext(ctx, `
INSERT INTO task_sessions (stream_id, status, issue_provider, issue_id, issue_title, initial_summary,
    slack_channel, slack_thread_ts, unresolved_block_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.StreamID,
			string(record.Status),
			record.IssueProvider,
			record.IssueID,
			record.IssueTitle,
			record.InitialSummary,
			record.SlackChannel,
			record.SlackThreadTS,
			record.UnresolvedBlockCount,
			toMillis(record.CreatedAt),
			toMillis(record.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert task session: %w", err)
		}
		return nil
	}
	_, err := tx.ExecContext(ctx, `
UPDATE task_sessions
SET status = ?, issue_provider = ?, issue_id = ?, issue_title = ?, initial_summary = ?,
    slack_channel = ?, slack_thread_ts = ?, unresolved_block_count = ?, updated_at = ?
WHERE stream_id = ?`,
		string(record.Status),
		record.IssueProvider,
		record.IssueID,
		record.IssueTitle,
		record.InitialSummary,
		record.SlackChannel,
		record.SlackThreadTS,
		record.UnresolvedBlockCount,
		toMillis(record.UpdatedAt),
		record.StreamID,
	)
	if err != nil {
		return fmt.Errorf("update task session: %w", err)
	}
	return nil
}

func scanTaskRecord(row rowScanner) (storage.TaskRecord, error) {
	var record storage.TaskRecord
	var status string
	var createdAt, updatedAt int64
	if err := row.Scan(
		&record.StreamID,
		&status,
		&record.IssueProvider,
		&record.IssueID,
		&record.IssueTitle,
		&record.InitialSummary,
		&record.SlackChannel,
		&record.SlackThreadTS,
		&record.UnresolvedBlockCount,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TaskRecord{}, err
		}
		return storage.TaskRecord{}, fmt.Errorf("scan task session: %w", err)
	}
	record.Status = task.Status(status)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
