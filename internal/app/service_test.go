package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/relayforge/taskrelay/internal/engine"
	"github.com/relayforge/taskrelay/internal/projection"
	"github.com/relayforge/taskrelay/internal/storage/sqlite"
)

// sequenceIDs hands out predictable identifiers so tests can assert id
// threading through results.
func sequenceIDs() func() (string, error) {
	var n int
	return func() (string, error) {
		n++
		return fmt.Sprintf("id-%d", n), nil
	}
}

func newService(t *testing.T) *Service {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"),
		sqlite.WithProjection(projection.Apply))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	pipeline, err := engine.New(engine.Config{
		Store: store,
		Now:   func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	service, err := New(Config{
		Pipeline: pipeline,
		Tasks:    store,
		NewID:    sequenceIDs(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestStartTaskGeneratesSessionID(t *testing.T) {
	ctx := context.Background()
	service := newService(t)

	result, err := service.StartTask(ctx, IssueInput{Provider: "manual", Title: "Fix login"}, "kickoff")
	if err != nil {
		t.Fatalf("start task: %v", err)
	}
	if result.TaskSessionID != "id-1" {
		t.Fatalf("expected generated session id, got %q", result.TaskSessionID)
	}
	if result.Status != "in_progress" {
		t.Fatalf("expected in_progress, got %s", result.Status)
	}
	if result.IssuedAt.IsZero() {
		t.Fatal("expected issued-at timestamp")
	}
}

func TestRejectionSurfacesAsRejectionError(t *testing.T) {
	ctx := context.Background()
	service := newService(t)

	_, err := service.AddProgress(ctx, "missing", "progress")
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected rejection error, got %v", err)
	}
	if rejection.Code != "TASK_NOT_STARTED" {
		t.Fatalf("unexpected code %s", rejection.Code)
	}
	if rejection.Message != "Task session not found" {
		t.Fatalf("unexpected message %q", rejection.Message)
	}
}

func TestReportAndResolveBlockThreadsIDs(t *testing.T) {
	ctx := context.Background()
	service := newService(t)

	started, err := service.StartTask(ctx, IssueInput{Provider: "manual", Title: "T"}, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	blocked, err := service.ReportBlock(ctx, started.TaskSessionID, "waiting on review")
	if err != nil {
		t.Fatalf("report block: %v", err)
	}
	if blocked.Status != "blocked" {
		t.Fatalf("expected blocked, got %s", blocked.Status)
	}
	if blocked.BlockReportID != "id-2" {
		t.Fatalf("expected generated block id, got %q", blocked.BlockReportID)
	}

	resolved, err := service.ResolveBlock(ctx, started.TaskSessionID, blocked.BlockReportID)
	if err != nil {
		t.Fatalf("resolve block: %v", err)
	}
	if resolved.Status != "in_progress" {
		t.Fatalf("expected in_progress after resolve, got %s", resolved.Status)
	}
}

func TestPauseResumeCycle(t *testing.T) {
	ctx := context.Background()
	service := newService(t)

	started, err := service.StartTask(ctx, IssueInput{Provider: "manual", Title: "T"}, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	paused, err := service.PauseTask(ctx, started.TaskSessionID, "lunch")
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != "paused" || paused.PauseReportID == "" {
		t.Fatalf("unexpected pause result %+v", paused)
	}

	resumed, err := service.ResumeTask(ctx, started.TaskSessionID, "back")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != "in_progress" {
		t.Fatalf("expected in_progress after resume, got %s", resumed.Status)
	}
}

func TestCompleteTaskReportsUnresolvedBlocks(t *testing.T) {
	ctx := context.Background()
	service := newService(t)

	started, err := service.StartTask(ctx, IssueInput{Provider: "manual", Title: "T"}, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	blocked, err := service.ReportBlock(ctx, started.TaskSessionID, "flaky CI")
	if err != nil {
		t.Fatalf("report block: %v", err)
	}

	completed, err := service.CompleteTask(ctx, started.TaskSessionID, "shipped anyway")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != "completed" {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	if len(completed.UnresolvedBlocks) != 1 {
		t.Fatalf("expected one unresolved block, got %d", len(completed.UnresolvedBlocks))
	}
	block := completed.UnresolvedBlocks[0]
	if block.BlockReportID != blocked.BlockReportID || block.Reason != "flaky CI" || block.ReportedAt.IsZero() {
		t.Fatalf("unexpected unresolved block %+v", block)
	}
}

func TestCancelTask(t *testing.T) {
	ctx := context.Background()
	service := newService(t)

	started, err := service.StartTask(ctx, IssueInput{Provider: "manual", Title: "T"}, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	cancelled, err := service.CancelTask(ctx, started.TaskSessionID, "superseded")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	_, err = service.AddProgress(ctx, started.TaskSessionID, "too late")
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected rejection on terminal session, got %v", err)
	}
	if rejection.Code != "TASK_INVALID_STATUS_TRANSITION" {
		t.Fatalf("unexpected code %s", rejection.Code)
	}
}

func TestListTasks(t *testing.T) {
	ctx := context.Background()
	service := newService(t)

	first, err := service.StartTask(ctx, IssueInput{Provider: "manual", Title: "One"}, "")
	if err != nil {
		t.Fatalf("start first: %v", err)
	}
	second, err := service.StartTask(ctx, IssueInput{Provider: "github", ID: "42", Title: "Two"}, "")
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	if _, err := service.CompleteTask(ctx, second.TaskSessionID, "done"); err != nil {
		t.Fatalf("complete second: %v", err)
	}

	result, err := service.ListTasks(ctx, "in_progress", 0, "")
	if err != nil {
		t.Fatalf("list in_progress: %v", err)
	}
	if result.Total != 1 || len(result.Tasks) != 1 || result.Tasks[0].TaskSessionID != first.TaskSessionID {
		t.Fatalf("unexpected in_progress page %+v", result)
	}

	result, err = service.ListTasks(ctx, "", 0, `issue_provider = "github"`)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if result.Total != 1 || result.Tasks[0].Issue.ID != "42" {
		t.Fatalf("unexpected filtered page %+v", result)
	}
}

func TestListTasksRejectsUnknownStatus(t *testing.T) {
	service := newService(t)
	if _, err := service.ListTasks(context.Background(), "shipped", 0, ""); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestListTasksRejectsMalformedFilter(t *testing.T) {
	service := newService(t)
	if _, err := service.ListTasks(context.Background(), "", 0, `status ~ "x"`); err == nil {
		t.Fatal("expected error for malformed filter")
	}
}
