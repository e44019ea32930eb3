package notify

import (
	"context"
	"fmt"
	"log"
	"time"
)

// LogNotifier writes notifications to the process log instead of a chat
// service. It stands in for Slack when no bot token is configured, so local
// runs still exercise the full delivery path.
type LogNotifier struct {
	Logger *log.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) logger() *log.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return log.Default()
}

// PostMessage logs the message and reports it delivered. A thread-less post
// fabricates a thread timestamp so thread linking still happens.
func (n *LogNotifier) PostMessage(_ context.Context, req PostMessageRequest) (PostMessageResult, error) {
	threadTS := req.ThreadTS
	if threadTS == "" {
		threadTS = fmt.Sprintf("%d.000000", time.Now().Unix())
	}
	n.logger().Printf("notify: [%s thread %s] %s", req.Channel, threadTS, req.Message)
	return PostMessageResult{Delivered: true, Channel: req.Channel, ThreadTS: threadTS}, nil
}

// AddReaction logs the reaction and reports it delivered.
func (n *LogNotifier) AddReaction(_ context.Context, req AddReactionRequest) (AddReactionResult, error) {
	n.logger().Printf("notify: [%s %s] :%s:", req.Channel, req.Timestamp, req.Emoji)
	return AddReactionResult{Delivered: true}, nil
}
