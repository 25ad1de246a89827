package server

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/chatbot"
	"chatrelay/internal/config"
	"chatrelay/internal/provider"
	"chatrelay/internal/storage"
)

type fakeBackend struct {
	mu       sync.Mutex
	requests []provider.ChatRequest
	version  string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Chat(_ context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	last := req.Messages[len(req.Messages)-1].Content
	return &provider.ChatResponse{Content: "pong: " + last, Model: req.Model}, nil
}

func (f *fakeBackend) Ping(context.Context) error { return nil }

func (f *fakeBackend) Version(context.Context) (string, error) { return f.version, nil }

func (f *fakeBackend) Models(context.Context) ([]string, error) { return []string{"test-model"}, nil }

func (f *fakeBackend) lastRequest() provider.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	config.Reset()
	t.Cleanup(config.Reset)

	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Ollama.Model = "test-model"
	cfg.Chat.ContextFile = filepath.Join(t.TempDir(), "missing.txt")
	cfg.Audit.Enabled = true
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.db")
	return cfg
}

func startServer(t *testing.T, cfg *config.Config, configPath string) (*Server, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{version: "0.5.7"}
	srv, err := NewServer(ServerConfig{
		Config:     cfg,
		ConfigPath: configPath,
		Version:    "test",
		Logger:     zerolog.Nop(),
		Backend:    backend,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, backend
}

func postMessage(t *testing.T, addr, from, body string) string {
	t.Helper()
	resp, err := http.PostForm("http://"+addr+"/webhook", url.Values{"From": {from}, "Body": {body}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestNewServer_RequiresConfig(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestNewServer_InvalidSweepSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.SweepSchedule = "not a schedule"

	_, err := NewServer(ServerConfig{Config: cfg, Logger: zerolog.Nop(), Backend: &fakeBackend{}})
	assert.Error(t, err)
}

func TestServer_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	srv, backend := startServer(t, cfg, "")

	assert.True(t, srv.IsRunning())
	assert.Equal(t, "0.5.7", srv.BackendVersion())
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	body := postMessage(t, addr, "whatsapp:+15550001111", "What is 2+2?")
	assert.Contains(t, body, "<Message>pong: What is 2+2?</Message>")

	req := backend.lastRequest()
	assert.Equal(t, "test-model", req.Model)
	require.NotNil(t, req.Options)
	assert.Equal(t, cfg.Ollama.Options.TopK, req.Options.TopK)

	body = postMessage(t, addr, "whatsapp:+15550001111", "hola")
	assert.Contains(t, body, "Hi there!")

	assert.Equal(t, 1, srv.Bot().Sessions())

	exs, err := srv.db.ListExchanges(context.Background(), storage.ListOptions{})
	require.NoError(t, err)
	require.Len(t, exs, 2)
	assert.Equal(t, string(chatbot.OutcomeGreeting), exs[0].Outcome)
	assert.Equal(t, string(chatbot.OutcomeCompleted), exs[1].Outcome)
	assert.Equal(t, "pong: What is 2+2?", exs[1].Reply)
}

func TestServer_StatusReportsBackendVersion(t *testing.T) {
	cfg := testConfig(t)
	srv, _ := startServer(t, cfg, "")

	resp, err := http.Get("http://" + srv.Addr() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"backend_version":"0.5.7"`)
	assert.Contains(t, string(data), `"model":"test-model"`)
}

func TestServer_StopIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Enabled = false
	srv, _ := startServer(t, cfg, "")

	require.NoError(t, srv.Stop())
	assert.False(t, srv.IsRunning())
	require.NoError(t, srv.Stop())
}

func TestServer_ReloadConfigAppliesLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0600))

	cfg := testConfig(t)
	cfg.Audit.Enabled = false
	srv, err := NewServer(ServerConfig{Config: cfg, ConfigPath: path, Logger: zerolog.Nop(), Backend: &fakeBackend{}})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0600))
	srv.reloadConfig(path)

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestServer_WatchesConfigFile(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0600))

	cfg := testConfig(t)
	cfg.Audit.Enabled = false
	startServer(t, cfg, path)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0600))

	require.Eventually(t, func() bool {
		return zerolog.GlobalLevel() == zerolog.WarnLevel
	}, 3*time.Second, 20*time.Millisecond)
}

func TestAuditRecorder(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer db.Close()

	rec := &AuditRecorder{DB: db}
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	err = rec.RecordExchange(context.Background(), chatbot.Exchange{
		ID:        "ex-1",
		Sender:    "whatsapp:+1",
		Input:     "hi there friend",
		Reply:     "too slow",
		Outcome:   chatbot.OutcomeTimedOut,
		Model:     "m",
		Latency:   12 * time.Second,
		Error:     "generation timed out",
		CreatedAt: created,
	})
	require.NoError(t, err)

	got, err := db.GetExchange(context.Background(), "ex-1")
	require.NoError(t, err)
	assert.Equal(t, "timed_out", got.Outcome)
	assert.Equal(t, 12*time.Second, got.Latency)
	assert.True(t, strings.HasPrefix(got.Error, "generation"))
	assert.True(t, got.CreatedAt.Equal(created))
}
