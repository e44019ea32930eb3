package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/relayforge/taskrelay/internal/domain/event"
	"github.com/relayforge/taskrelay/internal/domain/task"
	"github.com/relayforge/taskrelay/internal/notify"
	"github.com/relayforge/taskrelay/internal/storage"
)

const defaultThreadLinkRetries = 1

// DrainerConfig wires a Drainer.
type DrainerConfig struct {
	Store          storage.Store
	Notifier       notify.Notifier
	DefaultChannel string
	// ThreadLinkRetries is how many times a thread-link append is retried
	// after a version conflict. Nil means the default of one retry; an
	// explicit zero disables retries.
	ThreadLinkRetries *int
	Now               func() time.Time
	Logger            *log.Logger
}

// Drainer delivers pending outbox entries. Delivery is at-least-once: an
// entry is finalized only after its side effect succeeds, so a crash between
// delivery and finalization redelivers.
type Drainer struct {
	store             storage.Store
	notifier          notify.Notifier
	defaultChannel    string
	threadLinkRetries int
	now               func() time.Time
	logger            *log.Logger
}

// NewDrainer creates a Drainer from the config.
func NewDrainer(cfg DrainerConfig) (*Drainer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	retries := defaultThreadLinkRetries
	if cfg.ThreadLinkRetries != nil {
		if *cfg.ThreadLinkRetries < 0 {
			return nil, fmt.Errorf("thread link retries must not be negative")
		}
		retries = *cfg.ThreadLinkRetries
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Drainer{
		store:             cfg.Store,
		notifier:          cfg.Notifier,
		defaultChannel:    cfg.DefaultChannel,
		threadLinkRetries: retries,
		now:               now,
		logger:            logger,
	}, nil
}

// Stats summarizes one drain pass.
type Stats struct {
	Delivered int
	Failed    int
	Deferred  int
}

// Drain delivers up to limit pending entries, oldest first. Each entry is
// handled in isolation: a failing entry never blocks the rest of the batch.
func (d *Drainer) Drain(ctx context.Context, limit int) (Stats, error) {
	var stats Stats

	entries, err := d.store.ListPendingOutbox(ctx, limit)
	if err != nil {
		return stats, fmt.Errorf("list pending outbox: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		var outcome outcome
		switch entry.Policy {
		case storage.PolicyNotify:
			outcome = d.deliverNotify(ctx, entry)
		case storage.PolicyReaction:
			outcome = d.deliverReaction(ctx, entry)
		default:
			outcome = failed(fmt.Sprintf("unknown policy type %q", entry.Policy))
		}

		switch {
		case outcome.failReason != "":
			stats.Failed++
			if err := d.store.MarkOutboxFailed(ctx, entry.ID, outcome.failReason); err != nil {
				d.logger.Printf("outbox: mark entry %d failed: %v", entry.ID, err)
			}
		case outcome.deferReason != "":
			stats.Deferred++
			if err := d.store.RecordOutboxAttempt(ctx, entry.ID, outcome.deferReason); err != nil {
				d.logger.Printf("outbox: record entry %d attempt: %v", entry.ID, err)
			}
		default:
			stats.Delivered++
			if err := d.store.MarkOutboxProcessed(ctx, entry.ID, outcome.channel, outcome.threadTS); err != nil {
				d.logger.Printf("outbox: mark entry %d processed: %v", entry.ID, err)
			}
		}
	}

	return stats, nil
}

type outcome struct {
	channel     string
	threadTS    string
	failReason  string
	deferReason string
}

func delivered(channel, threadTS string) outcome {
	return outcome{channel: channel, threadTS: threadTS}
}

func failed(reason string) outcome {
	return outcome{failReason: reason}
}

func deferred(reason string) outcome {
	return outcome{deferReason: reason}
}

func (d *Drainer) deliverNotify(ctx context.Context, entry storage.OutboxEntry) outcome {
	var payload NotifyPayload
	if err := json.Unmarshal(entry.PayloadJSON, &payload); err != nil {
		return failed(fmt.Sprintf("malformed notify payload: %v", err))
	}

	channel, threadTS := payload.Channel, payload.ThreadTS
	if threadTS == "" {
		// An earlier entry for this stream may have created the thread since
		// this one was derived. Re-check the read model so every session keeps
		// a single thread.
		record, err := d.store.GetTask(ctx, entry.StreamID)
		switch {
		case err == nil && record.SlackThreadTS != "":
			channel, threadTS = record.SlackChannel, record.SlackThreadTS
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return deferred(fmt.Sprintf("load task record: %v", err))
		}
	}
	if channel == "" {
		channel = d.defaultChannel
	}
	if channel == "" {
		return failed("no delivery channel configured")
	}

	result, err := d.notifier.PostMessage(ctx, notify.PostMessageRequest{
		Channel:  channel,
		Message:  payload.Message,
		ThreadTS: threadTS,
	})
	if err != nil {
		return deferred(fmt.Sprintf("post message: %v", err))
	}
	if !result.Delivered {
		return deferred(fmt.Sprintf("post message declined: %s", result.Error))
	}

	if threadTS == "" {
		if err := d.linkThread(ctx, entry.StreamID, result.Channel, result.ThreadTS); err != nil {
			// The message is out; retrying the entry would duplicate it. Fail
			// the entry and surface the link problem in its reason.
			return failed(fmt.Sprintf("message delivered to %s/%s but thread link failed: %v",
				result.Channel, result.ThreadTS, err))
		}
		return delivered(result.Channel, result.ThreadTS)
	}
	return delivered(channel, threadTS)
}

func (d *Drainer) deliverReaction(ctx context.Context, entry storage.OutboxEntry) outcome {
	var payload ReactionPayload
	if err := json.Unmarshal(entry.PayloadJSON, &payload); err != nil {
		return failed(fmt.Sprintf("malformed reaction payload: %v", err))
	}

	channel, timestamp := payload.Channel, payload.Timestamp
	if timestamp == "" {
		record, err := d.store.GetTask(ctx, entry.StreamID)
		switch {
		case err == nil && record.SlackThreadTS != "":
			channel, timestamp = record.SlackChannel, record.SlackThreadTS
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return deferred(fmt.Sprintf("load task record: %v", err))
		}
	}
	if channel == "" || timestamp == "" {
		return failed("no linked thread to react to")
	}

	result, err := d.notifier.AddReaction(ctx, notify.AddReactionRequest{
		Channel:   channel,
		Timestamp: timestamp,
		Emoji:     payload.Emoji,
	})
	if err != nil {
		return deferred(fmt.Sprintf("add reaction: %v", err))
	}
	if !result.Delivered {
		return deferred(fmt.Sprintf("add reaction declined: %s", result.Error))
	}
	return delivered(channel, timestamp)
}

// linkThread appends a thread-linked event to the stream. Version conflicts
// are retried because the stream may advance while the drain runs; the fold's
// first-write-wins rule absorbs a concurrent link.
func (d *Drainer) linkThread(ctx context.Context, streamID, channel, threadTS string) error {
	payload, err := json.Marshal(task.ThreadLinkedPayload{Channel: channel, ThreadTS: threadTS})
	if err != nil {
		return fmt.Errorf("encode thread link payload: %w", err)
	}

	attempts := 1 + d.threadLinkRetries
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		tail, err := d.store.LatestVersion(ctx, streamID)
		if err != nil {
			return fmt.Errorf("load stream tail: %w", err)
		}
		_, err = d.store.AppendEvents(ctx, streamID, tail, []event.Event{{
			StreamID:    streamID,
			Type:        event.TypeSlackThreadLinked,
			OccurredAt:  d.now().UTC(),
			PayloadJSON: payload,
		}})
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return fmt.Errorf("append thread link: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("append thread link: %w", lastErr)
}
