package app

import (
	"context"
	"fmt"
	"time"

	"github.com/relayforge/taskrelay/internal/domain/task"
	"github.com/relayforge/taskrelay/internal/filter"
	"github.com/relayforge/taskrelay/internal/storage"
)

// TaskSummary is one read-model row in a listing.
type TaskSummary struct {
	TaskSessionID    string     `json:"taskSessionId"`
	Status           string     `json:"status"`
	Issue            IssueInput `json:"issue"`
	InitialSummary   string     `json:"initialSummary,omitempty"`
	UnresolvedBlocks int        `json:"unresolvedBlocks"`
	SlackChannel     string     `json:"slackChannel,omitempty"`
	SlackThreadTS    string     `json:"slackThreadTs,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// ListTasksResult is one page of task sessions plus the unpaged total.
type ListTasksResult struct {
	Total int           `json:"total"`
	Tasks []TaskSummary `json:"tasks"`
}

// ListTasks queries the projected read model. status narrows to one lifecycle
// status; filterExpr is an optional AIP-160 expression over the read-model
// fields. The event log is never consulted.
func (s *Service) ListTasks(ctx context.Context, status string, limit int, filterExpr string) (ListTasksResult, error) {
	query := storage.ListTasksQuery{Limit: limit}

	if status != "" {
		normalized, ok := task.NormalizeStatusLabel(status)
		if !ok {
			return ListTasksResult{}, fmt.Errorf("unknown status %q", status)
		}
		query.Status = normalized
	}

	condition, err := filter.ParseTaskFilter(filterExpr)
	if err != nil {
		return ListTasksResult{}, fmt.Errorf("invalid filter: %w", err)
	}
	query.Filter = condition

	page, err := s.tasks.ListTasks(ctx, query)
	if err != nil {
		return ListTasksResult{}, fmt.Errorf("list task sessions: %w", err)
	}

	result := ListTasksResult{Total: page.Total, Tasks: []TaskSummary{}}
	for _, record := range page.Records {
		result.Tasks = append(result.Tasks, TaskSummary{
			TaskSessionID: record.StreamID,
			Status:        string(record.Status),
			Issue: IssueInput{
				Provider: record.IssueProvider,
				ID:       record.IssueID,
				Title:    record.IssueTitle,
			},
			InitialSummary:   record.InitialSummary,
			UnresolvedBlocks: record.UnresolvedBlockCount,
			SlackChannel:     record.SlackChannel,
			SlackThreadTS:    record.SlackThreadTS,
			CreatedAt:        record.CreatedAt,
			UpdatedAt:        record.UpdatedAt,
		})
	}
	return result, nil
}
