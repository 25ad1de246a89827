package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/chatbot"
	"chatrelay/internal/twiml"
)

const internalErrorText = "internal error"

type stubResponder struct {
	mu     sync.Mutex
	reply  chatbot.Reply
	panics bool
	calls  []string
}

func (s *stubResponder) Respond(_ context.Context, sender, text string) chatbot.Reply {
	s.mu.Lock()
	s.calls = append(s.calls, sender+"|"+text)
	s.mu.Unlock()
	if s.panics {
		panic("boom")
	}
	return s.reply
}

func postForm(t *testing.T, h http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func expectedTwiML(t *testing.T, text string) string {
	t.Helper()
	data, err := twiml.MessagingResponse(text).Marshal()
	require.NoError(t, err)
	return string(data)
}

func TestWebhookHandler_Reply(t *testing.T) {
	bot := &stubResponder{reply: chatbot.Reply{
		Text:       "Paris is the capital of France.",
		Outcome:    chatbot.OutcomeCompleted,
		ExchangeID: "ex-1",
	}}
	h := WebhookHandler(bot, internalErrorText)

	w := postForm(t, h, url.Values{"Body": {"capital of France?"}, "From": {"whatsapp:+15551234567"}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, twiml.ContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "ex-1", w.Header().Get("X-Exchange-ID"))
	assert.Equal(t, expectedTwiML(t, "Paris is the capital of France."), w.Body.String())
	assert.Equal(t, []string{"whatsapp:+15551234567|capital of France?"}, bot.calls)
}

func TestWebhookHandler_EscapesReply(t *testing.T) {
	bot := &stubResponder{reply: chatbot.Reply{Text: "1 < 2 & 3 > 2"}}
	w := postForm(t, WebhookHandler(bot, internalErrorText), url.Values{"Body": {"x"}, "From": {"a"}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1 &lt; 2 &amp; 3 &gt; 2")
}

func TestWebhookHandler_MissingBodyStillResponds(t *testing.T) {
	bot := &stubResponder{reply: chatbot.Reply{Text: "hi"}}
	w := postForm(t, WebhookHandler(bot, internalErrorText), url.Values{"From": {"whatsapp:+1"}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"whatsapp:+1|"}, bot.calls)
}

func TestWebhookHandler_MissingSender(t *testing.T) {
	bot := &stubResponder{reply: chatbot.Reply{Text: "unused"}}
	w := postForm(t, WebhookHandler(bot, internalErrorText), url.Values{"Body": {"hello"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, expectedTwiML(t, MissingSenderText), w.Body.String())
	assert.Empty(t, bot.calls)
}

func TestWebhookHandler_EmptyReplyFallsBack(t *testing.T) {
	bot := &stubResponder{reply: chatbot.Reply{}}
	w := postForm(t, WebhookHandler(bot, internalErrorText), url.Values{"Body": {"x"}, "From": {"a"}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, expectedTwiML(t, internalErrorText), w.Body.String())
	assert.Empty(t, w.Header().Get("X-Exchange-ID"))
}

func TestWebhookHandler_Panic(t *testing.T) {
	bot := &stubResponder{panics: true}
	w := postForm(t, WebhookHandler(bot, internalErrorText), url.Values{"Body": {"x"}, "From": {"a"}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, expectedTwiML(t, internalErrorText), w.Body.String())
}
