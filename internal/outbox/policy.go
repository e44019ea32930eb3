// Package outbox derives durable notification intents from committed events
// and drains them to the chat service.
package outbox

import (
	"encoding/json"

	"github.com/relayforge/taskrelay/internal/domain/event"
	"github.com/relayforge/taskrelay/internal/notify"
	"github.com/relayforge/taskrelay/internal/storage"
)

// NotifyPayload is the stored payload of a notify entry. Channel and
// ThreadTS are the destination known at derivation time; the drain resolves
// missing pieces against the read model at delivery time.
type NotifyPayload struct {
	Channel  string `json:"channel,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Message  string `json:"message"`
}

// ReactionPayload is the stored payload of a reaction entry.
type ReactionPayload struct {
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Emoji     string `json:"emoji"`
}

// Policy maps committed events to outbox entries.
type Policy struct {
	localizer notify.Localizer
}

// NewPolicy creates a Policy rendering messages with the given localizer.
func NewPolicy(localizer notify.Localizer) *Policy {
	if localizer == nil {
		localizer = notify.NewLocalizer()
	}
	return &Policy{localizer: localizer}
}

// Entries derives the outbox entries one committed event produces. Progress
// updates and thread links produce none; completion produces a notification
// plus a reaction on the session thread.
func (p *Policy) Entries(evt event.Event, pctx storage.PolicyContext) []storage.OutboxEntry {
	message, ok := notify.RenderEventMessage(p.localizer, evt)
	if !ok {
		return nil
	}

	channel := pctx.ThreadChannel
	if pctx.ThreadTS == "" {
		channel = pctx.DefaultChannel
	}

	notifyPayload, err := json.Marshal(NotifyPayload{
		Channel:  channel,
		ThreadTS: pctx.ThreadTS,
		Message:  message,
	})
	if err != nil {
		return nil
	}

	entries := []storage.OutboxEntry{{
		StreamID:     evt.StreamID,
		EventVersion: evt.Version,
		Policy:       storage.PolicyNotify,
		PayloadJSON:  notifyPayload,
		Status:       storage.OutboxStatusPending,
	}}

	if evt.Type == event.TypeTaskCompleted {
		reactionPayload, err := json.Marshal(ReactionPayload{
			Channel:   pctx.ThreadChannel,
			Timestamp: pctx.ThreadTS,
			Emoji:     notify.CompletionEmoji,
		})
		if err == nil {
			entries = append(entries, storage.OutboxEntry{
				StreamID:     evt.StreamID,
				EventVersion: evt.Version,
				Policy:       storage.PolicyReaction,
				PayloadJSON:  reactionPayload,
				Status:       storage.OutboxStatusPending,
			})
		}
	}

	return entries
}
