// Package inference wraps a model provider with the deadline, result
// classification and reply shaping used for chat exchanges.
package inference

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatrelay/internal/provider"
	"chatrelay/pkg/logger"
)

// Defaults applied by NewClient.
const (
	DefaultTimeout          = 12 * time.Second
	DefaultMaxReplyChars    = 1500
	DefaultTruncationNotice = "...\n\n(Reply truncated)"
)

// Config configures a Client.
type Config struct {
	Model            string
	Timeout          time.Duration
	Options          provider.Options
	MaxReplyChars    int
	TruncationNotice string
}

// Result is a successful generation.
type Result struct {
	Text    string
	Model   string
	Usage   *provider.Usage
	Latency time.Duration
}

// Client calls a provider under a hard deadline.
type Client struct {
	provider provider.Provider
	cfg      Config
}

// NewClient creates a client for p.
func NewClient(p provider.Provider, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxReplyChars <= 0 {
		cfg.MaxReplyChars = DefaultMaxReplyChars
	}
	if cfg.TruncationNotice == "" {
		cfg.TruncationNotice = DefaultTruncationNotice
	}
	return &Client{provider: p, cfg: cfg}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Timeout returns the generation bound.
func (c *Client) Timeout() time.Duration {
	return c.cfg.Timeout
}

type chatResult struct {
	resp *provider.ChatResponse
	err  error
}

// Generate sends messages to the backend and waits at most the configured
// timeout. The returned error is ErrTimeout, ErrEmptyResult or a
// *BackendError. The text of a successful Result is trimmed but not
// truncated.
func (c *Client) Generate(ctx context.Context, messages []provider.Message) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	opts := c.cfg.Options
	req := provider.ChatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Options:  &opts,
	}

	start := time.Now()

	// Buffered so the worker can always deliver and exit after we stop
	// waiting.
	done := make(chan chatResult, 1)
	go func() {
		resp, err := c.provider.Chat(ctx, req)
		done <- chatResult{resp: resp, err: err}
	}()

	out, err := await(ctx, done)
	if err != nil {
		return nil, err
	}

	latency := time.Since(start)

	if out.err != nil {
		if provider.IsTimeout(out.err) {
			return nil, ErrTimeout
		}
		return nil, &BackendError{Err: out.err}
	}
	if out.resp == nil {
		return nil, &BackendError{Err: errors.New("nil response")}
	}

	text := strings.TrimSpace(out.resp.Content)
	if text == "" {
		return nil, ErrEmptyResult
	}

	logger.Debug().
		Str("model", out.resp.Model).
		Dur("latency", latency).
		Int("chars", len([]rune(text))).
		Msg("Generation completed")

	return &Result{
		Text:    text,
		Model:   out.resp.Model,
		Usage:   out.resp.Usage,
		Latency: latency,
	}, nil
}

// await waits for the worker result or the end of ctx. A result that is
// ready when ctx ends wins, so a reply finishing at the deadline is kept.
func await(ctx context.Context, done <-chan chatResult) (chatResult, error) {
	select {
	case out := <-done:
		return out, nil
	case <-ctx.Done():
	}

	select {
	case out := <-done:
		return out, nil
	default:
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return chatResult{}, ErrTimeout
	}
	return chatResult{}, &BackendError{Err: ctx.Err()}
}

// Truncate cuts text to the configured number of characters and appends
// the truncation notice. Shorter text is returned unchanged.
func (c *Client) Truncate(text string) string {
	return Truncate(text, c.cfg.MaxReplyChars, c.cfg.TruncationNotice)
}

// Truncate keeps the first limit runes of text and appends notice when
// text is longer than limit.
func Truncate(text string, limit int, notice string) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + notice
}
