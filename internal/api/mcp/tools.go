// Package mcp exposes the task-session operations as MCP tools.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/relayforge/taskrelay/internal/app"
)

// TaskStartInput is the MCP tool input for starting a task session.
type TaskStartInput struct {
	IssueProvider  string `json:"issueProvider,omitempty" jsonschema:"issue provider, github or manual (default manual)"`
	IssueID        string `json:"issueId,omitempty" jsonschema:"optional issue identifier"`
	IssueTitle     string `json:"issueTitle" jsonschema:"issue title"`
	InitialSummary string `json:"initialSummary,omitempty" jsonschema:"short summary of the planned work"`
}

// TaskStartTool defines the MCP tool schema for starting a task session.
func TaskStartTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "task_start",
		Description: "Start tracking a new task session for an issue and announce it in the team channel",
	}
}

// TaskStartHandler executes a task start request.
func TaskStartHandler(service *app.Service) mcpsdk.ToolHandlerFor[TaskStartInput, app.StartTaskResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, input TaskStartInput) (*mcpsdk.CallToolResult, app.StartTaskResult, error) {
		result, err := service.StartTask(ctx, app.IssueInput{
			Provider: input.IssueProvider,
			ID:       input.IssueID,
			Title:    input.IssueTitle,
		}, input.InitialSummary)
		if err != nil {
			return nil, app.StartTaskResult{}, fmt.Errorf("task start failed: %w", err)
		}
		return nil, result, nil
	}
}

// TaskProgressInput is the MCP tool input for recording progress.
type TaskProgressInput struct {
	TaskSessionID string `json:"taskSessionId" jsonschema:"task session identifier"`
	Summary       string `json:"summary" jsonschema:"progress summary"`
}

// TaskAddProgressTool defines the MCP tool schema for recording progress.
func TaskAddProgressTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "task_add_progress",
		Description: "Record a progress update on an in-progress task session",
	}
}

// TaskAddProgressHandler executes a progress update request.
func TaskAddProgressHandler(service *app.Service) mcpsdk.ToolHandlerFor[TaskProgressInput, app.StatusResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, input TaskProgressInput) (*mcpsdk.CallToolResult, app.StatusResult, error) {
		result, err := service.AddProgress(ctx, input.TaskSessionID, input.Summary)
		if err != nil {
			return nil, app.StatusResult{}, fmt.Errorf("task progress failed: %w", err)
		}
		return nil, result, nil
	}
}

// TaskReportBlockInput is the MCP tool input for reporting a block.
type TaskReportBlockInput struct {
	TaskSessionID string `json:"taskSessionId" jsonschema:"task session identifier"`
	Reason        string `json:"reason" jsonschema:"what is blocking the task"`
}

// TaskReportBlockTool defines the MCP tool schema for reporting a block.
func TaskReportBlockTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "task_report_block",
		Description: "Report a blocking condition on a task session and notify the team thread",
	}
}

// TaskReportBlockHandler executes a block report request.
func TaskReportBlockHandler(service *app.Service) mcpsdk.ToolHandlerFor[TaskReportBlockInput, app.ReportBlockResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, input TaskReportBlockInput) (*mcpsdk.CallToolResult, app.ReportBlockResult, error) {
		result, err := service.ReportBlock(ctx, input.TaskSessionID, input.Reason)
		if err != nil {
			return nil, app.ReportBlockResult{}, fmt.Errorf("task block report failed: %w", err)
		}
		return nil, result, nil
	}
}

// TaskResolveBlockInput is the MCP tool input for resolving a block.
type TaskResolveBlockInput struct {
	TaskSessionID string `json:"taskSessionId" jsonschema:"task session identifier"`
	BlockReportID string `json:"blockReportId" jsonschema:"identifier returned by task_report_block"`
}

// TaskResolveBlockTool defines the MCP tool schema for resolving a block.
func TaskResolveBlockTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "task_resolve_block",
		Description: "Resolve a previously reported block on a task session",
	}
}

// TaskResolveBlockHandler executes a block resolution request.
func TaskResolveBlockHandler(service *app.Service) mcpsdk.ToolHandlerFor[TaskResolveBlockInput, app.StatusResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, input TaskResolveBlockInput) (*mcpsdk.CallToolResult, app.StatusResult, error) {
		result, err := service.ResolveBlock(ctx, input.TaskSessionID, input.BlockReportID)
		if err != nil {
			return nil, app.StatusResult{}, fmt.Errorf("task block resolve failed: %w", err)
		}
		return nil, result, nil
	}
}

// TaskPauseInput is the MCP tool input for pausing a task session.
type TaskPauseInput struct {
	TaskSessionID string `json:"taskSessionId" jsonschema:"task session identifier"`
	Reason        string `json:"reason,omitempty" jsonschema:"why the task is being paused"`
}

// TaskPauseTool defines the MCP tool schema for pausing a task session.
func TaskPauseTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "task_pause",
		Description: "Pause a task session, recording why work stopped",
	}
}

// TaskPauseHandler executes a pause request.
func TaskPauseHandler(service *app.Service) mcpsdk.ToolHandlerFor[TaskPauseInput, app.PauseTaskResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, input TaskPauseInput) (*mcpsdk.CallToolResult, app.PauseTaskResult, error) {
		result, err := service.PauseTask(ctx, input.TaskSessionID, input.Reason)
		if err != nil {
			return nil, app.PauseTaskResult{}, fmt.Errorf("task pause failed: %w", err)
		}
		return nil, result, nil
	}
}

// TaskResumeInput is the MCP tool input for resuming a task session.
type TaskResumeInput struct {
	TaskSessionID string `json:"taskSessionId" jsonschema:"task session identifier"`
	Summary       string `json:"summary,omitempty" jsonschema:"summary of the state of work on resume"`
}

// TaskResumeTool defines the MCP tool schema for resuming a task session.
func TaskResumeTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "task_resume",
		Description: "Resume a paused task session",
	}
}

// TaskResumeHandler executes a resume request.
func TaskResumeHandler(service *app.Service) mcpsdk.ToolHandlerFor[TaskResumeInput, app.StatusResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, input TaskResumeInput) (*mcpsdk.CallToolResult, app.StatusResult, error) {
		result, err := service.ResumeTask(ctx, input.TaskSessionID, input.Summary)
		if err != nil {
			return nil, app.StatusResult{}, fmt.Errorf("task resume failed: %w", err)
		}
		return nil, result, nil
	}
}

// TaskCompleteInput is the MCP tool input for completing a task session.
type TaskCompleteInput struct {
	TaskSessionID string `json:"taskSessionId" jsonschema:"task session identifier"`
	Summary       string `json:"summary" jsonschema:"summary of the completed work"`
}

// TaskCompleteTool defines the MCP tool schema for completing a task session.
func TaskCompleteTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "task_complete",
		Description: "Complete a task session; blocks still open are reported, not required to be resolved",
	}
}

// TaskCompleteHandler executes a completion request.
func TaskCompleteHandler(service *app.Service) mcpsdk.ToolHandlerFor[TaskCompleteInput, app.CompleteTaskResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, input TaskCompleteInput) (*mcpsdk.CallToolResult, app.CompleteTaskResult, error) {
		result, err := service.CompleteTask(ctx, input.TaskSessionID, input.Summary)
		if err != nil {
			return nil, app.CompleteTaskResult{}, fmt.Errorf("task complete failed: %w", err)
		}
		return nil, result, nil
	}
}

// TaskCancelInput is the MCP tool input for cancelling a task session.
type TaskCancelInput struct {
	TaskSessionID string `json:"taskSessionId" jsonschema:"task session identifier"`
	Reason        string `json:"reason,omitempty" jsonschema:"optional cancellation reason"`
}

// TaskCancelTool defines the MCP tool schema for cancelling a task session.
func TaskCancelTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "task_cancel",
		Description: "Cancel a task session",
	}
}

// TaskCancelHandler executes a cancellation request.
func TaskCancelHandler(service *app.Service) mcpsdk.ToolHandlerFor[TaskCancelInput, app.StatusResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, input TaskCancelInput) (*mcpsdk.CallToolResult, app.StatusResult, error) {
		result, err := service.CancelTask(ctx, input.TaskSessionID, input.Reason)
		if err != nil {
			return nil, app.StatusResult{}, fmt.Errorf("task cancel failed: %w", err)
		}
		return nil, result, nil
	}
}

// TaskListInput is the MCP tool input for listing task sessions.
type TaskListInput struct {
	Status string `json:"status,omitempty" jsonschema:"restrict to one status: in_progress, blocked, paused, completed, cancelled"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of sessions to return"`
	Filter string `json:"filter,omitempty" jsonschema:"optional AIP-160 filter over status, issue_provider, issue_id, issue_title, unresolved_blocks, created_at, updated_at"`
}

// TaskListTool defines the MCP tool schema for listing task sessions.
func TaskListTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "task_list",
		Description: "List tracked task sessions from the read model",
	}
}

// TaskListHandler executes a listing request.
func TaskListHandler(service *app.Service) mcpsdk.ToolHandlerFor[TaskListInput, app.ListTasksResult] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, input TaskListInput) (*mcpsdk.CallToolResult, app.ListTasksResult, error) {
		result, err := service.ListTasks(ctx, input.Status, input.Limit, input.Filter)
		if err != nil {
			return nil, app.ListTasksResult{}, fmt.Errorf("task list failed: %w", err)
		}
		return nil, result, nil
	}
}
