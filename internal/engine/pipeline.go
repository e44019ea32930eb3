// Package engine runs the command pipeline: load history, replay state,
// decide, commit, and kick delivery.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relayforge/taskrelay/internal/domain/command"
	"github.com/relayforge/taskrelay/internal/domain/event"
	"github.com/relayforge/taskrelay/internal/domain/task"
	"github.com/relayforge/taskrelay/internal/outbox"
	"github.com/relayforge/taskrelay/internal/storage"
)

// Config wires a Pipeline.
type Config struct {
	Store storage.Store
	// Drainer, when set, is kicked after each successful commit so
	// notifications usually go out immediately. Delivery correctness never
	// depends on it; the sweeper drains whatever this pass misses.
	Drainer    *outbox.Drainer
	DrainLimit int
	Now        func() time.Time
	Logger     *log.Logger
}

// Pipeline executes commands against the event journal.
type Pipeline struct {
	store      storage.Store
	drainer    *outbox.Drainer
	drainLimit int
	now        func() time.Time
	logger     *log.Logger
	tracer     trace.Tracer
}

// New creates a Pipeline from the config.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		store:      cfg.Store,
		drainer:    cfg.Drainer,
		drainLimit: cfg.DrainLimit,
		now:        now,
		logger:     logger,
		tracer:     otel.Tracer("taskrelay/engine"),
	}, nil
}

// Result is the outcome of one command execution. A rejected command returns
// a Result with Rejections set and no error; errors are reserved for
// infrastructure faults.
type Result struct {
	Decision command.Decision
	Events   []event.Event
	State    task.State
}

// Rejected reports whether the decider declined the command.
func (r Result) Rejected() bool {
	return len(r.Decision.Rejections) > 0
}

// Execute runs one command through the pipeline. The append carries the
// version observed at load time, so a concurrent writer surfaces as
// storage.ErrVersionConflict and no decision made against stale state can
// commit.
func (p *Pipeline) Execute(ctx context.Context, cmd command.Command) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "engine.Execute", trace.WithAttributes(
		attribute.String("command.type", string(cmd.Type)),
		attribute.String("stream.id", cmd.StreamID),
	))
	defer span.End()

	if cmd.StreamID == "" {
		return Result{}, fmt.Errorf("stream id is required")
	}

	history, err := p.store.ListEvents(ctx, cmd.StreamID)
	if err != nil {
		return Result{}, fmt.Errorf("load history: %w", err)
	}

	state := task.Replay(cmd.StreamID, history)
	decision := task.Decide(state, cmd, p.now)
	if len(decision.Rejections) > 0 {
		return Result{Decision: decision, State: state}, nil
	}
	if len(decision.Events) == 0 {
		return Result{Decision: decision, State: state}, nil
	}

	expectedVersion := int64(len(history)) - 1
	appended, err := p.store.AppendEvents(ctx, cmd.StreamID, expectedVersion, decision.Events)
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("commit decision: %w", err)
	}

	result := Result{
		Decision: decision,
		Events:   appended,
		State:    task.Apply(state, appended),
	}

	if p.drainer != nil {
		if _, err := p.drainer.Drain(ctx, p.drainLimit); err != nil {
			p.logger.Printf("engine: post-commit drain: %v", err)
		}
	}

	return result, nil
}
