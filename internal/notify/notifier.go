// Package notify defines the chat-notification collaborator contract and the
// message rendering for task-session lifecycle events.
package notify

import "context"

// PostMessageRequest posts a message, optionally into an existing thread.
type PostMessageRequest struct {
	Channel  string
	Message  string
	ThreadTS string
}

// PostMessageResult reports the delivery outcome. Channel and ThreadTS echo
// the destination the chat service actually wrote to; for a thread-less post
// they identify the newly created thread.
type PostMessageResult struct {
	Delivered bool
	Channel   string
	ThreadTS  string
	Error     string
}

// AddReactionRequest adds an emoji reaction to an existing message.
type AddReactionRequest struct {
	Channel   string
	Timestamp string
	Emoji     string
}

// AddReactionResult reports the reaction outcome.
type AddReactionResult struct {
	Delivered bool
	Error     string
}

// Notifier is the outbound chat-notification client. A non-nil error means
// the call itself failed (transport, encoding); a Delivered=false result with
// a nil error means the chat service declined the request. Both are treated
// as retryable by the outbox drain.
type Notifier interface {
	PostMessage(ctx context.Context, req PostMessageRequest) (PostMessageResult, error)
	AddReaction(ctx context.Context, req AddReactionRequest) (AddReactionResult, error)
}
