// Package server assembles the chat relay from configuration: the model
// backend, the session store and its janitor, the chatbot, the optional
// audit log and event feed, and the webhook gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/chatbot"
	"chatrelay/internal/config"
	"chatrelay/internal/gateway"
	"chatrelay/internal/gateway/websocket"
	"chatrelay/internal/inference"
	"chatrelay/internal/prompt"
	"chatrelay/internal/provider"
	"chatrelay/internal/provider/ollama"
	"chatrelay/internal/session"
	"chatrelay/internal/storage"
	"chatrelay/pkg/logger"
)

// versionProbeTimeout bounds the backend version check made at startup.
const versionProbeTimeout = 3 * time.Second

// Backend is the model backend the server talks to.
type Backend interface {
	provider.Provider
	provider.HealthCheckable
}

// Server is the running relay.
type Server struct {
	cfg        *config.Config
	configPath string
	version    string
	logger     zerolog.Logger

	backend Backend
	store   *session.Store
	janitor *session.Janitor
	bot     *chatbot.Bot
	db      *storage.DB
	hub     *websocket.Hub
	feed    *websocket.Feed

	gatewayServer  *gateway.Server
	watcher        *gateway.Watcher
	listener       net.Listener
	backendVersion string

	running   bool
	mu        sync.RWMutex
	startedAt time.Time
	errChan   chan error
}

// ServerConfig holds what NewServer needs besides the loaded configuration.
type ServerConfig struct {
	Config     *config.Config
	ConfigPath string // watched for changes when non-empty
	Version    string
	Logger     zerolog.Logger

	// Backend overrides the Ollama provider built from Config.
	Backend Backend
}

// NewServer builds every component without opening the listener.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	c := cfg.Config

	backend := cfg.Backend
	if backend == nil {
		backend = ollama.NewOllamaProvider(ollama.Config{
			Endpoint:  c.Ollama.Endpoint,
			Model:     c.Ollama.Model,
			KeepAlive: c.Ollama.KeepAlive,
		})
	}

	store := session.NewStore(c.Session.Window)

	janitor, err := session.NewJanitor(store, c.Session.IdleTTL, c.Session.SweepSchedule)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        c,
		configPath: cfg.ConfigPath,
		version:    cfg.Version,
		logger:     cfg.Logger,
		backend:    backend,
		store:      store,
		janitor:    janitor,
		errChan:    make(chan error, 1),
	}

	botCfg := BotConfig(c, backend, store)

	if c.Audit.Enabled {
		db, err := storage.Open(c.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		s.db = db
		botCfg.Recorder = &AuditRecorder{DB: db}
	}

	if c.Feed.Enabled {
		s.hub = websocket.NewHub()
		s.feed = websocket.NewFeed(s.hub)
		botCfg.Publisher = s.feed
	}

	bot, err := chatbot.New(botCfg)
	if err != nil {
		s.closeDB()
		return nil, err
	}
	s.bot = bot

	return s, nil
}

// BotConfig wires the chatbot core from c: the assembler over store with
// the loaded context file, and an inference client over backend. Recorder
// and Publisher are left for the caller.
func BotConfig(c *config.Config, backend provider.Provider, store *session.Store) chatbot.Config {
	assembler := prompt.NewAssembler(store, prompt.LoadContext(c.Chat.ContextFile), c.Session.HistoryTurns)

	client := inference.NewClient(backend, inference.Config{
		Model:            c.Ollama.Model,
		Timeout:          c.Ollama.Timeout,
		Options:          OptionsFromConfig(c.Ollama.Options),
		MaxReplyChars:    c.Chat.MaxReplyChars,
		TruncationNotice: c.Chat.TruncationNotice,
	})

	return chatbot.Config{
		Store:     store,
		Assembler: assembler,
		Generator: client,
		Messages:  MessagesFromConfig(c.Messages),
	}
}

// OptionsFromConfig converts the configured decoding options.
func OptionsFromConfig(o config.OptionsConfig) provider.Options {
	return provider.Options{
		Temperature: o.Temperature,
		TopP:        o.TopP,
		TopK:        o.TopK,
		NumPredict:  o.NumPredict,
		NumCtx:      o.NumCtx,
	}
}

// MessagesFromConfig converts the configured canned replies.
func MessagesFromConfig(m config.MessagesConfig) chatbot.Messages {
	return chatbot.Messages{
		Greeting:      m.Greeting,
		ResetDone:     m.ResetDone,
		Help:          m.Help,
		Timeout:       m.Timeout,
		Failure:       m.Failure,
		Empty:         m.Empty,
		InternalError: m.InternalError,
	}
}

// ErrorChan reports a failure of the HTTP server after Start returned.
func (s *Server) ErrorChan() <-chan error {
	return s.errChan
}

// Bot returns the chatbot.
func (s *Server) Bot() *chatbot.Bot {
	return s.bot
}

// Addr returns the bound listen address once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BackendVersion returns the Ollama version seen at startup, if any.
func (s *Server) BackendVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backendVersion
}

// Start probes the backend, starts the background workers and begins
// serving. It returns once the listener is bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.backendVersion = s.probeBackend()

	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Addr(), err)
	}
	s.listener = ln

	s.gatewayServer = gateway.NewServer(s.cfg.Server, s.bot, gateway.Options{
		Version:        s.version,
		BackendVersion: s.backendVersion,
		InternalError:  s.bot.Messages().InternalError,
		Probe:          s.backend.Ping,
		Hub:            s.hub,
	})

	if err := s.janitor.Start(); err != nil {
		ln.Close()
		return err
	}

	if s.configPath != "" {
		s.startWatcher()
	}

	go func() {
		if err := s.gatewayServer.Serve(ln); err != nil {
			select {
			case s.errChan <- err:
			default:
			}
		}
	}()

	s.running = true
	s.startedAt = time.Now()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("model", s.bot.Model()).
		Bool("audit", s.db != nil).
		Bool("feed", s.hub != nil).
		Msg("Chat relay started")
	return nil
}

// probeBackend checks the backend version once. Failures are logged and
// never stop the server.
func (s *Server) probeBackend() string {
	ctx, cancel := context.WithTimeout(context.Background(), versionProbeTimeout)
	defer cancel()

	version, err := s.backend.Version(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Model backend not reachable, replies will fail until it is")
		return ""
	}

	ok, err := ollama.Compatible(version)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Str("version", version).Msg("Unrecognized backend version")
	case !ok:
		s.logger.Warn().
			Str("version", version).
			Str("minimum", ollama.MinVersion).
			Msg("Backend version is older than supported")
	default:
		s.logger.Info().Str("version", version).Msg("Model backend reachable")
	}
	return version
}

func (s *Server) startWatcher() {
	w, err := gateway.NewWatcher(s.configPath, s.reloadConfig)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Config watcher disabled")
		return
	}
	if err := w.Start(); err != nil {
		w.Stop()
		s.logger.Warn().Err(err).Str("path", s.configPath).Msg("Config watcher disabled")
		return
	}
	s.watcher = w
	s.gatewayServer.SetWatcher(w)
}

// reloadConfig re-reads the config file after a change. Only the log
// level applies to the running server; other changes need a restart.
func (s *Server) reloadConfig(path string) {
	config.Reset()
	newCfg, err := config.Load(path)
	if err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("Failed to reload config")
		return
	}

	if logger.SetLevel(newCfg.Log.Level) {
		s.logger.Info().Str("level", newCfg.Log.Level).Msg("Log level changed")
	}

	if newCfg.Ollama.Model != s.cfg.Ollama.Model || newCfg.Server.Addr() != s.cfg.Server.Addr() {
		s.logger.Warn().Msg("Model or listen address changed, restart to apply")
	}

	if s.feed != nil {
		s.feed.ConfigReloaded(path)
	}
	s.logger.Info().Str("path", path).Msg("Configuration reloaded")
}

// Stop shuts the server down and releases its resources.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.closeDB()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("Stopping chat relay...")

	<-s.janitor.Stop().Done()

	var shutdownErr error
	if s.gatewayServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.gatewayServer.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Error during server shutdown")
			shutdownErr = err
		}
	}

	s.closeDB()

	s.logger.Info().Dur("uptime", time.Since(s.startedAt)).Msg("Chat relay stopped")
	return shutdownErr
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) closeDB() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to close audit log")
	}
	s.db = nil
}
