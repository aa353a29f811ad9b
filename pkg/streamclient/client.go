// Package streamclient talks to the chat stream API: it creates chats, opens
// event streams and folds them into a progress.Aggregator.
package streamclient

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
	"strings"
	"time"

	"github.com/eternisai/agent-stream/pkg/events"
	"github.com/eternisai/agent-stream/pkg/progress"
)

// ErrNoTerminal is returned when a stream ends without a terminal event.
var ErrNoTerminal = errors.New("stream ended without a terminal event")

// APIError is a non-2xx response of the API.
type APIError struct {
	Status  int
	Code    string         `json:"code"`
	Message string         `json:"error"`
	Details map[string]any `json:"details"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Chat is a conversation as returned by the API.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StopResult is the body of a successful stop request.
type StopResult struct {
	Stopped    bool   `json:"stopped"`
	StreamID   string `json:"streamId"`
	EventsSent int64  `json:"eventsSent"`
	InstanceID string `json:"instanceId"`
}

// StreamRequest is the body of a stream request.
type StreamRequest struct {
	Content          string `json:"content"`
	DeepResearchMode bool   `json:"deepResearchMode"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Streams can run for minutes, so it
// should not carry a short overall timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	logger  *slog.Logger
}

// New returns a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON sends a request and decodes a JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}

// CreateChat creates a chat owned by the caller.
func (c *Client) CreateChat(ctx context.Context, title string) (Chat, error) {
	var chat Chat
	err := c.doJSON(ctx, http.MethodPost, "/chats", map[string]string{"title": title}, &chat)
	return chat, err
}

// ListChats returns the caller's chats, most recently updated first.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var resp struct {
		Chats []Chat `json:"chats"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/chats", nil, &resp)
	return resp.Chats, err
}

// Messages returns the last limit messages of a chat; zero returns all.
func (c *Client) Messages(ctx context.Context, chatID string, limit int) ([]events.Message, error) {
	path := "/chats/" + url.PathEscape(chatID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Messages []events.Message `json:"messages"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, nil, &resp)
	return resp.Messages, err
}

// Stop asks the server to stop the active stream of a chat.
func (c *Client) Stop(ctx context.Context, chatID string) (StopResult, error) {
	var res StopResult
	err := c.doJSON(ctx, http.MethodPost, "/chat/"+url.PathEscape(chatID)+"/stream/stop", nil, &res)
	return res, err
}

// Stream sends a message and folds the response stream into agg until the
// stream ends. onChange is called after every applied frame. The returned
// snapshot is valid even when an error is returned after the stream opened.
func (c *Client) Stream(ctx context.Context, chatID string, body StreamRequest, agg *progress.Aggregator, onChange func(progress.Change)) (progress.Snapshot, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/chat/"+url.PathEscape(chatID)+"/stream", body)
	if err != nil {
		return progress.Snapshot{}, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return progress.Snapshot{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return progress.Snapshot{}, decodeAPIError(resp)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		c.logger.Warn("unexpected stream content type", slog.String("content_type", ct))
	}

	err = agg.Consume(ctx, resp.Body, onChange)
	snap := agg.Snapshot()

	c.logger.Debug("stream finished",
		slog.String("chat_id", chatID),
		slog.String("terminal", string(snap.Terminal)),
		slog.Duration("elapsed", time.Since(start)))

	if err != nil {
		return snap, fmt.Errorf("stream interrupted: %w", err)
	}
	if snap.Terminal == progress.TerminalNone {
		return snap, ErrNoTerminal
	}
	return snap, nil
}
