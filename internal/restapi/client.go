// Package restapi implements the request/response collaborator of the sync
// core over HTTP+JSON.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/Tyrowin/gochat-sync/internal/observability"
	"github.com/Tyrowin/gochat-sync/internal/realtime"
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: server error (%d): %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: request failed with status %d", e.Method, e.Path, e.StatusCode)
}

// Temporary reports whether retrying the request may succeed.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Options tune a Client. Zero values pick defaults.
type Options struct {
	HTTPClient *http.Client
	// ReadRetries is how many times idempotent reads are retried on transport
	// errors and temporary statuses.
	ReadRetries uint64
	RetryDelay  time.Duration
	Logger      *slog.Logger
}

// Client talks to the chat REST API. It implements realtime.API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	readRetries uint64
	retryDelay  time.Duration
	logger      *slog.Logger
}

var _ realtime.API = (*Client)(nil)

// NewClient returns a client for baseURL. A non-empty token is sent as a
// bearer Authorization header.
func NewClient(baseURL, token string, opts Options) *Client {
	c := &Client{
		httpClient:  opts.HTTPClient,
		baseURL:     baseURL,
		token:       token,
		readRetries: opts.ReadRetries,
		retryDelay:  opts.RetryDelay,
		logger:      observability.OrDiscard(opts.Logger),
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.retryDelay <= 0 {
		c.retryDelay = 200 * time.Millisecond
	}
	return c
}

type createMessageBody struct {
	Content         string          `json:"content"`
	ParentMessageID int64           `json:"parentMessageId,omitempty"`
	Identifier      realtime.TempID `json:"identifier"`
}

// CreateMessage posts a message. It is never retried: the server may have
// persisted it even when the response was lost.
func (c *Client) CreateMessage(ctx context.Context, req realtime.CreateMessageRequest) (realtime.Message, error) {
	var msg realtime.Message
	path := fmt.Sprintf("/api/workspaces/%d/channels/%d/messages", req.WorkspaceID, req.ChannelID)
	body := createMessageBody{Content: req.Content, ParentMessageID: req.ParentMessageID, Identifier: req.Identifier}
	if err := c.doRequest(ctx, http.MethodPost, path, body, &msg); err != nil {
		return realtime.Message{}, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// AddReaction adds the user's emojiID reaction and returns the new count.
func (c *Client) AddReaction(ctx context.Context, messageID int64, emojiID string) (realtime.Reaction, error) {
	return c.reaction(ctx, http.MethodPost, messageID, emojiID)
}

// RemoveReaction removes the user's emojiID reaction and returns the new count.
func (c *Client) RemoveReaction(ctx context.Context, messageID int64, emojiID string) (realtime.Reaction, error) {
	return c.reaction(ctx, http.MethodDelete, messageID, emojiID)
}

func (c *Client) reaction(ctx context.Context, method string, messageID int64, emojiID string) (realtime.Reaction, error) {
	var r realtime.Reaction
	path := fmt.Sprintf("/api/messages/%d/reactions/%s", messageID, url.PathEscape(emojiID))
	if err := c.doRequest(ctx, method, path, nil, &r); err != nil {
		return realtime.Reaction{}, fmt.Errorf("reaction %s: %w", emojiID, err)
	}
	if r.MessageID == 0 {
		r.MessageID = messageID
	}
	if r.EmojiID == "" {
		r.EmojiID = emojiID
	}
	return r, nil
}

// ListMessages returns the messages of a channel, or of a thread when
// scope.ThreadID is set.
func (c *Client) ListMessages(ctx context.Context, scope realtime.Scope) ([]realtime.Message, error) {
	path := fmt.Sprintf("/api/workspaces/%d/channels/%d/messages", scope.WorkspaceID, scope.ChannelID)
	if scope.ThreadID != 0 {
		path += "?parentMessageId=" + strconv.FormatInt(scope.ThreadID, 10)
	}
	var msgs []realtime.Message
	if err := c.read(ctx, path, &msgs); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// ListChannels returns the channels of a workspace.
func (c *Client) ListChannels(ctx context.Context, workspaceID int64) ([]realtime.Channel, error) {
	var channels []realtime.Channel
	if err := c.read(ctx, fmt.Sprintf("/api/workspaces/%d/channels", workspaceID), &channels); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

// read performs a GET, retrying transport errors and temporary statuses.
func (c *Client) read(ctx context.Context, path string, result any) error {
	b := retry.WithMaxRetries(c.readRetries, retry.NewExponential(c.retryDelay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.doRequest(ctx, http.MethodGet, path, nil, result)
		if err == nil {
			return nil
		}
		var herr *HTTPError
		if errors.As(err, &herr) && !herr.Temporary() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		c.logger.Debug("retrying read", "path", path, "error", err)
		return retry.RetryableError(err)
	})
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := &HTTPError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			herr.Message = errResp.Message
			if herr.Message == "" {
				herr.Message = errResp.Error
			}
		}
		return herr
	}

	if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
