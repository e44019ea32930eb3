// Package slack implements the notify.Notifier contract against the Slack
// Web API.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/relayforge/taskrelay/internal/notify"
)

const (
	defaultBaseURL = "https://slack.com/api"
	defaultTimeout = 10 * time.Second
)

// Client posts messages and reactions through the Slack Web API using a bot
// token.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

var _ notify.Notifier = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Slack API base URL. Tests point this at a local
// server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a Slack client with the provided bot token.
func New(token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("slack token is required")
	}
	client := &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type postMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

type postMessageResponse struct {
	OK      bool   `json:"ok"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
	Error   string `json:"error"`
}

// PostMessage calls chat.postMessage. A thread-less request creates a new
// thread; the response's channel and ts identify it.
func (c *Client) PostMessage(ctx context.Context, req notify.PostMessageRequest) (notify.PostMessageResult, error) {
	var resp postMessageResponse
	err := c.call(ctx, "chat.postMessage", postMessageRequest{
		Channel:  req.Channel,
		Text:     req.Message,
		ThreadTS: req.ThreadTS,
	}, &resp)
	if err != nil {
		return notify.PostMessageResult{}, err
	}

	result := notify.PostMessageResult{
		Delivered: resp.OK,
		Channel:   resp.Channel,
		ThreadTS:  resp.TS,
		Error:     resp.Error,
	}
	// Posting into an existing thread keeps the thread's root timestamp as
	// the binding identity.
	if req.ThreadTS != "" {
		result.ThreadTS = req.ThreadTS
	}
	return result, nil
}

type addReactionRequest struct {
	Channel   string `json:"channel"`
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
}

type addReactionResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// AddReaction calls reactions.add. An already_reacted response counts as
// delivered so redelivery after a crash stays idempotent.
func (c *Client) AddReaction(ctx context.Context, req notify.AddReactionRequest) (notify.AddReactionResult, error) {
	var resp addReactionResponse
	err := c.call(ctx, "reactions.add", addReactionRequest{
		Channel:   req.Channel,
		Timestamp: req.Timestamp,
		Name:      req.Emoji,
	}, &resp)
	if err != nil {
		return notify.AddReactionResult{}, err
	}
	if !resp.OK && resp.Error == "already_reacted" {
		return notify.AddReactionResult{Delivered: true}, nil
	}
	return notify.AddReactionResult{Delivered: resp.OK, Error: resp.Error}, nil
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("call %s: unexpected status %d", method, httpResp.StatusCode)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
