package inference

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chatrelay/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	reply   string
	err     error
	block   bool
	lastReq provider.ChatRequest
	exited  atomic.Bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	defer f.exited.Store(true)
	f.lastReq = req
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &provider.ChatResponse{Content: f.reply, Model: "fake-model"}, nil
}

func testMessages() []provider.Message {
	return []provider.Message{
		{Role: provider.RoleSystem, Content: ""},
		{Role: provider.RoleUser, Content: "hello"},
	}
}

func TestGenerate_Success(t *testing.T) {
	p := &fakeProvider{reply: "  Sure thing.  \n"}
	c := NewClient(p, Config{
		Model:   "deepseek-r1:7b",
		Timeout: time.Second,
		Options: provider.Options{Temperature: 0.1, TopP: 0.2, TopK: 3, NumPredict: 50, NumCtx: 512},
	})

	res, err := c.Generate(context.Background(), testMessages())
	require.NoError(t, err)
	assert.Equal(t, "Sure thing.", res.Text)
	assert.Equal(t, "fake-model", res.Model)

	assert.Equal(t, "deepseek-r1:7b", p.lastReq.Model)
	require.NotNil(t, p.lastReq.Options)
	assert.Equal(t, 3, p.lastReq.Options.TopK)
	assert.Equal(t, 512, p.lastReq.Options.NumCtx)
	assert.Len(t, p.lastReq.Messages, 2)
}

func TestGenerate_Timeout(t *testing.T) {
	p := &fakeProvider{block: true}
	c := NewClient(p, Config{Timeout: 30 * time.Millisecond})

	start := time.Now()
	res, err := c.Generate(context.Background(), testMessages())

	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)

	// the worker observes the cancelled context and exits
	assert.Eventually(t, p.exited.Load, time.Second, 5*time.Millisecond)
}

func TestGenerate_ProviderTimeout(t *testing.T) {
	p := &fakeProvider{err: &provider.ProviderError{Code: provider.ErrCodeTimeout, Message: "request timeout"}}
	c := NewClient(p, Config{Timeout: time.Second})

	_, err := c.Generate(context.Background(), testMessages())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGenerate_EmptyResult(t *testing.T) {
	for _, reply := range []string{"", "   ", "\n\t"} {
		p := &fakeProvider{reply: reply}
		c := NewClient(p, Config{Timeout: time.Second})

		_, err := c.Generate(context.Background(), testMessages())
		assert.ErrorIs(t, err, ErrEmptyResult, "reply %q", reply)
	}
}

func TestGenerate_BackendError(t *testing.T) {
	cause := &provider.ProviderError{Code: provider.ErrCodeServiceUnavailable, Message: "cannot reach Ollama"}
	p := &fakeProvider{err: cause}
	c := NewClient(p, Config{Timeout: time.Second})

	_, err := c.Generate(context.Background(), testMessages())
	require.Error(t, err)
	assert.True(t, IsBackendError(err))
	assert.False(t, errors.Is(err, ErrTimeout))

	var pe *provider.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, provider.ErrCodeServiceUnavailable, pe.Code)
}

func TestGenerate_ParentCancelled(t *testing.T) {
	p := &fakeProvider{block: true}
	c := NewClient(p, Config{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Generate(ctx, testMessages())
	require.Error(t, err)
	assert.True(t, IsBackendError(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwait_ReadyResultBeatsDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	// both cases are ready on every iteration
	for i := 0; i < 200; i++ {
		done := make(chan chatResult, 1)
		done <- chatResult{resp: &provider.ChatResponse{Content: "just in time"}}

		out, err := await(ctx, done)
		require.NoError(t, err)
		require.NotNil(t, out.resp)
		assert.Equal(t, "just in time", out.resp.Content)
	}
}

func TestAwait_DeadlineWithoutResult(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := await(ctx, make(chan chatResult, 1))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(&fakeProvider{}, Config{Model: "m"})
	assert.Equal(t, DefaultTimeout, c.Timeout())
	assert.Equal(t, "m", c.Model())
	assert.Equal(t, DefaultMaxReplyChars, c.cfg.MaxReplyChars)
	assert.Equal(t, DefaultTruncationNotice, c.cfg.TruncationNotice)
}

func TestTruncate(t *testing.T) {
	const notice = "...\n\n(truncated)"

	short := strings.Repeat("a", 1500)
	assert.Equal(t, short, Truncate(short, 1500, notice))

	long := strings.Repeat("b", 1501)
	got := Truncate(long, 1500, notice)
	assert.Equal(t, strings.Repeat("b", 1500)+notice, got)

	// counted in characters, not bytes
	accented := strings.Repeat("ñ", 1600)
	got = Truncate(accented, 1500, notice)
	assert.Equal(t, 1500+len([]rune(notice)), len([]rune(got)))
	assert.True(t, strings.HasPrefix(got, strings.Repeat("ñ", 1500)))

	assert.Equal(t, long, Truncate(long, 0, notice))
}

func TestClient_Truncate(t *testing.T) {
	c := NewClient(&fakeProvider{}, Config{MaxReplyChars: 5, TruncationNotice: "~"})
	assert.Equal(t, "hello~", c.Truncate("hello world"))
	assert.Equal(t, "hi", c.Truncate("hi"))
}
