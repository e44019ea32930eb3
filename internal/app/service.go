// Package app exposes the task-session operations consumed by the transport
// adapter. It owns identifier generation and the mapping between decider
// rejections and caller-facing errors.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relayforge/taskrelay/internal/domain/command"
	"github.com/relayforge/taskrelay/internal/domain/event"
	"github.com/relayforge/taskrelay/internal/domain/task"
	"github.com/relayforge/taskrelay/internal/engine"
	"github.com/relayforge/taskrelay/internal/platform/id"
	"github.com/relayforge/taskrelay/internal/storage"
)

// RejectionError is a domain rejection surfaced to the caller. The message is
// the exact user-facing error string.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// Service implements the task-session operations.
type Service struct {
	pipeline *engine.Pipeline
	tasks    storage.TaskReadModel
	newID    func() (string, error)
}

// Config wires a Service.
type Config struct {
	Pipeline *engine.Pipeline
	Tasks    storage.TaskReadModel
	// NewID overrides identifier generation; nil uses the platform default.
	NewID func() (string, error)
}

// New creates a Service from the config.
func New(cfg Config) (*Service, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if cfg.Tasks == nil {
		return nil, fmt.Errorf("task read model is required")
	}
	newID := cfg.NewID
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		pipeline: cfg.Pipeline,
		tasks:    cfg.Tasks,
		newID:    newID,
	}, nil
}

// IssueInput identifies the issue a task session works on.
type IssueInput struct {
	Provider string `json:"provider"`
	ID       string `json:"id,omitempty"`
	Title    string `json:"title"`
}

// StartTaskResult is the outcome of starting a task session.
type StartTaskResult struct {
	TaskSessionID string    `json:"taskSessionId"`
	Status        string    `json:"status"`
	IssuedAt      time.Time `json:"issuedAt"`
}

// StartTask opens a new task session stream.
func (s *Service) StartTask(ctx context.Context, issue IssueInput, initialSummary string) (StartTaskResult, error) {
	streamID, err := s.newID()
	if err != nil {
		return StartTaskResult{}, fmt.Errorf("generate session id: %w", err)
	}

	payload, err := json.Marshal(task.StartPayload{
		Issue: task.IssueRef{
			Provider: issue.Provider,
			ID:       issue.ID,
			Title:    issue.Title,
		},
		InitialSummary: initialSummary,
	})
	if err != nil {
		return StartTaskResult{}, fmt.Errorf("encode start payload: %w", err)
	}

	result, err := s.execute(ctx, command.Command{
		Type:        command.TypeStartTask,
		StreamID:    streamID,
		PayloadJSON: payload,
	})
	if err != nil {
		return StartTaskResult{}, err
	}
	return StartTaskResult{
		TaskSessionID: streamID,
		Status:        string(result.State.Status),
		IssuedAt:      result.Events[0].OccurredAt,
	}, nil
}

// StatusResult reports the session status after an operation.
type StatusResult struct {
	Status string `json:"status"`
}

// AddProgress records a progress update. Blocked sessions reject it.
func (s *Service) AddProgress(ctx context.Context, taskSessionID, summary string) (StatusResult, error) {
	payload, err := json.Marshal(task.ProgressPayload{Summary: summary})
	if err != nil {
		return StatusResult{}, fmt.Errorf("encode progress payload: %w", err)
	}
	result, err := s.execute(ctx, command.Command{
		Type:        command.TypeAddProgress,
		StreamID:    taskSessionID,
		PayloadJSON: payload,
	})
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{Status: string(result.State.Status)}, nil
}

// ReportBlockResult is the outcome of reporting a block.
type ReportBlockResult struct {
	Status        string `json:"status"`
	BlockReportID string `json:"blockReportId"`
}

// ReportBlock records a blocking condition and returns its generated id.
func (s *Service) ReportBlock(ctx context.Context, taskSessionID, reason string) (ReportBlockResult, error) {
	blockReportID, err := s.newID()
	if err != nil {
		return ReportBlockResult{}, fmt.Errorf("generate block report id: %w", err)
	}
	payload, err := json.Marshal(task.BlockPayload{
		BlockReportID: blockReportID,
		Reason:        reason,
	})
	if err != nil {
		return ReportBlockResult{}, fmt.Errorf("encode block payload: %w", err)
	}
	result, err := s.execute(ctx, command.Command{
		Type:        command.TypeReportBlock,
		StreamID:    taskSessionID,
		PayloadJSON: payload,
	})
	if err != nil {
		return ReportBlockResult{}, err
	}
	return ReportBlockResult{
		Status:        string(result.State.Status),
		BlockReportID: blockReportID,
	}, nil
}

// ResolveBlock resolves a previously reported block.
func (s *Service) ResolveBlock(ctx context.Context, taskSessionID, blockReportID string) (StatusResult, error) {
	payload, err := json.Marshal(task.BlockResolvedPayload{BlockReportID: blockReportID})
	if err != nil {
		return StatusResult{}, fmt.Errorf("encode resolve payload: %w", err)
	}
	result, err := s.execute(ctx, command.Command{
		Type:        command.TypeResolveBlock,
		StreamID:    taskSessionID,
		PayloadJSON: payload,
	})
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{Status: string(result.State.Status)}, nil
}

// PauseTaskResult is the outcome of pausing a session.
type PauseTaskResult struct {
	Status        string `json:"status"`
	PauseReportID string `json:"pauseReportId"`
}

// PauseTask pauses the session and returns the generated pause report id.
func (s *Service) PauseTask(ctx context.Context, taskSessionID, reason string) (PauseTaskResult, error) {
	pauseReportID, err := s.newID()
	if err != nil {
		return PauseTaskResult{}, fmt.Errorf("generate pause report id: %w", err)
	}
	payload, err := json.Marshal(task.PausePayload{
		PauseReportID: pauseReportID,
		Reason:        reason,
	})
	if err != nil {
		return PauseTaskResult{}, fmt.Errorf("encode pause payload: %w", err)
	}
	result, err := s.execute(ctx, command.Command{
		Type:        command.TypePauseTask,
		StreamID:    taskSessionID,
		PayloadJSON: payload,
	})
	if err != nil {
		return PauseTaskResult{}, err
	}
	return PauseTaskResult{
		Status:        string(result.State.Status),
		PauseReportID: pauseReportID,
	}, nil
}

// ResumeTask resumes a paused session.
func (s *Service) ResumeTask(ctx context.Context, taskSessionID, summary string) (StatusResult, error) {
	payload, err := json.Marshal(task.ResumePayload{Summary: summary})
	if err != nil {
		return StatusResult{}, fmt.Errorf("encode resume payload: %w", err)
	}
	result, err := s.execute(ctx, command.Command{
		Type:        command.TypeResumeTask,
		StreamID:    taskSessionID,
		PayloadJSON: payload,
	})
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{Status: string(result.State.Status)}, nil
}

// UnresolvedBlock reports a block still open at completion time.
type UnresolvedBlock struct {
	BlockReportID string    `json:"blockReportId"`
	Reason        string    `json:"reason"`
	ReportedAt    time.Time `json:"reportedAt"`
}

// CompleteTaskResult is the outcome of completing a session.
type CompleteTaskResult struct {
	Status           string            `json:"status"`
	UnresolvedBlocks []UnresolvedBlock `json:"unresolvedBlocks,omitempty"`
}

// CompleteTask completes the session. Unresolved blocks are reported in the
// result, never required to be resolved first.
func (s *Service) CompleteTask(ctx context.Context, taskSessionID, summary string) (CompleteTaskResult, error) {
	payload, err := json.Marshal(task.CompletePayload{Summary: summary})
	if err != nil {
		return CompleteTaskResult{}, fmt.Errorf("encode complete payload: %w", err)
	}
	result, err := s.execute(ctx, command.Command{
		Type:        command.TypeCompleteTask,
		StreamID:    taskSessionID,
		PayloadJSON: payload,
	})
	if err != nil {
		return CompleteTaskResult{}, err
	}

	out := CompleteTaskResult{Status: string(result.State.Status)}
	for _, evt := range result.Events {
		if evt.Type != event.TypeTaskCompleted {
			continue
		}
		var completed task.CompletePayload
		if err := json.Unmarshal(evt.PayloadJSON, &completed); err != nil {
			return CompleteTaskResult{}, fmt.Errorf("decode completed payload: %w", err)
		}
		for _, block := range completed.UnresolvedBlocks {
			out.UnresolvedBlocks = append(out.UnresolvedBlocks, UnresolvedBlock{
				BlockReportID: block.ID,
				Reason:        block.Reason,
				ReportedAt:    block.ReportedAt,
			})
		}
	}
	return out, nil
}

// CancelTask cancels the session with an optional reason.
func (s *Service) CancelTask(ctx context.Context, taskSessionID, reason string) (StatusResult, error) {
	payload, err := json.Marshal(task.CancelPayload{Reason: reason})
	if err != nil {
		return StatusResult{}, fmt.Errorf("encode cancel payload: %w", err)
	}
	result, err := s.execute(ctx, command.Command{
		Type:        command.TypeCancelTask,
		StreamID:    taskSessionID,
		PayloadJSON: payload,
	})
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{Status: string(result.State.Status)}, nil
}

func (s *Service) execute(ctx context.Context, cmd command.Command) (engine.Result, error) {
	result, err := s.pipeline.Execute(ctx, cmd)
	if err != nil {
		return engine.Result{}, err
	}
	if result.Rejected() {
		rejection := result.Decision.Rejections[0]
		return engine.Result{}, &RejectionError{
			Code:    rejection.Code,
			Message: rejection.Message,
		}
	}
	return result, nil
}
