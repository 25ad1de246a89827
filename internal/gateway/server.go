// Package gateway provides the webhook HTTP server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"chatrelay/internal/config"
	"chatrelay/internal/gateway/handlers"
	"chatrelay/internal/gateway/middleware"
	"chatrelay/internal/gateway/websocket"
	"chatrelay/pkg/logger"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 5 * time.Second

// Endpoints lists the public routes reported by /status.
var Endpoints = []string{"/webhook", "/", "/status"}

// Bot is what the gateway needs from the chatbot.
type Bot interface {
	handlers.Responder
	handlers.StatusSource
}

// Options carries the optional parts of the server.
type Options struct {
	Version        string
	BackendVersion string
	// InternalError is replied when the webhook cannot produce an answer.
	InternalError string
	// Probe backs /health. Nil means liveness only.
	Probe func(ctx context.Context) error
	// Hub enables /ws/events when set.
	Hub *websocket.Hub
}

// Server represents the HTTP gateway server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	hub        *websocket.Hub
	watcher    *Watcher
	cfg        config.ServerConfig

	shutdownOnce sync.Once
}

// NewServer creates a new gateway server with all routes registered.
func NewServer(cfg config.ServerConfig, bot Bot, opts Options) *Server {
	router := mux.NewRouter()

	// Recovery -> Logging -> RequestID
	handler := middleware.Recovery(
		middleware.Logging(
			middleware.RequestID(router),
		),
	)

	s := &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		},
		router:  router,
		handler: handler,
		hub:     opts.Hub,
		cfg:     cfg,
	}
	s.setupRoutes(bot, opts)
	return s
}

// setupRoutes configures the server routes.
func (s *Server) setupRoutes(bot Bot, opts Options) {
	info := handlers.ServiceInfo{
		Version:        opts.Version,
		Endpoints:      Endpoints,
		BackendVersion: opts.BackendVersion,
		FeedEnabled:    s.hub != nil,
	}

	s.router.HandleFunc("/webhook", handlers.WebhookHandler(bot, opts.InternalError)).Methods(http.MethodPost)
	s.router.HandleFunc("/", handlers.HomeHandler(bot, info)).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/status", handlers.StatusHandler(bot, info)).Methods(http.MethodGet)
	s.router.HandleFunc("/health", handlers.HealthHandler(opts.Version, opts.Probe)).Methods(http.MethodGet)

	if s.hub != nil {
		s.router.HandleFunc("/ws/events", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWs(s.hub, w, r)
		})
	}

	s.router.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowed)
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	handlers.InitStartTime()

	if s.hub != nil {
		go s.hub.Run()
	}

	logger.Info().
		Str("addr", ln.Addr().String()).
		Msg("Starting gateway server")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		logger.Info().Msg("Shutting down gateway server")

		if s.watcher != nil {
			s.watcher.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if shutdownErr := s.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			err = fmt.Errorf("shutdown error: %w", shutdownErr)
		}

		// hijacked feed connections are not tracked by http.Server
		if s.hub != nil {
			s.hub.Stop()
		}
	})
	return err
}

// SetWatcher sets the config file watcher stopped on Shutdown.
func (s *Server) SetWatcher(w *Watcher) {
	s.watcher = w
}

// Handler returns the full middleware chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Hub returns the feed hub, nil when the feed is disabled.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}
