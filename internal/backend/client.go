// Package backend talks to the appointment-booking bot over its two HTTP endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrTransport = errors.New("backend unreachable")
	ErrStatus    = errors.New("backend returned error status")
	ErrDecode    = errors.New("backend response not decodable")
)

// maxResponseBytes caps how much of a reply body is read.
const maxResponseBytes = 1 << 20

// ChatReply is the decoded body of POST /chat.
type ChatReply struct {
	Reply           string
	ConversationEnd bool
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply           *string `json:"reply"`
	ConversationEnd bool    `json:"conversation_end"`
}

// Client issues reset and chat requests against a single backend base URL.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	chatTimeout  time.Duration
	resetTimeout time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithChatTimeout bounds each chat request. Zero disables the bound.
func WithChatTimeout(d time.Duration) Option {
	return func(c *Client) { c.chatTimeout = d }
}

// WithResetTimeout bounds each reset request. Zero disables the bound.
func WithResetTimeout(d time.Duration) Option {
	return func(c *Client) { c.resetTimeout = d }
}

// New validates baseURL and returns a client for it.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must use http or https", baseURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("backend url %q has no host", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(parsed.String(), "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalised backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Reset clears the server-side conversation. The response body is ignored.
func (c *Client) Reset(ctx context.Context) error {
	ctx, cancel := withOptionalTimeout(ctx, c.resetTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reset", nil)
	if err != nil {
		return fmt.Errorf("build reset request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: reset answered %d", ErrStatus, resp.StatusCode)
	}
	return nil
}

// Chat sends one user message and decodes the bot reply.
// A missing conversation_end field is read as false; a missing reply is a decode failure.
func (c *Client) Chat(ctx context.Context, message string) (ChatReply, error) {
	ctx, cancel := withOptionalTimeout(ctx, c.chatTimeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{Message: message})
	if err != nil {
		return ChatReply{}, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return ChatReply{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ChatReply{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return ChatReply{}, fmt.Errorf("%w: chat answered %d", ErrStatus, resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		// 读取正文途中超时或被取消仍属于传输失败。
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ChatReply{}, fmt.Errorf("%w: %w", ErrTransport, ctxErr)
		}
		return ChatReply{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if decoded.Reply == nil {
		return ChatReply{}, fmt.Errorf("%w: reply field missing", ErrDecode)
	}

	return ChatReply{Reply: *decoded.Reply, ConversationEnd: decoded.ConversationEnd}, nil
}

// Outcome collapses an error from Reset or Chat into a metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrStatus):
		return "status"
	case errors.Is(err, ErrDecode):
		return "decode"
	default:
		return "transport"
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
