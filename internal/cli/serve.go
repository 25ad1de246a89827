package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chatrelay/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long: `Start the webhook server.

This command starts the HTTP server that provides:
- POST /webhook for Twilio WhatsApp messages
- GET / and GET /status for service information
- GET /health for liveness and backend reachability
- GET /ws/events, a live feed of handled exchanges (feed.enabled)

The server will listen on the configured host and port (default: 0.0.0.0:5000).`,
		Example: `  # Start server with default configuration
  chatrelay serve

  # Start server on another port with the audit log enabled
  chatrelay serve --port 8080 --audit

  # Start server with verbose logging
  chatrelay serve --verbose`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().String("host", "", "host to bind to (overrides config)")
	cmd.Flags().StringP("model", "m", "", "Ollama model (overrides config)")
	cmd.Flags().Bool("audit", false, "record exchanges to the audit log")
	cmd.Flags().Bool("no-feed", false, "disable the websocket event feed")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cliCtx, err := requireCLIContext(cmd)
	if err != nil {
		return err
	}

	cfg := cliCtx.Config
	log := cliCtx.Log()

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Ollama.Model = model
	}
	if audit, _ := cmd.Flags().GetBool("audit"); audit {
		cfg.Audit.Enabled = true
	}
	if noFeed, _ := cmd.Flags().GetBool("no-feed"); noFeed {
		cfg.Feed.Enabled = false
	}

	log.Info().
		Str("model", cfg.Ollama.Model).
		Str("endpoint", cfg.Ollama.Endpoint).
		Msg("Starting chatrelay...")

	watchPath := ""
	if _, err := os.Stat(cliCtx.ConfigPath); err == nil {
		watchPath = cliCtx.ConfigPath
	}

	srv, err := server.NewServer(server.ServerConfig{
		Config:     cfg,
		ConfigPath: watchPath,
		Version:    Version,
		Logger:     *log,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info().
		Str("address", "http://"+srv.Addr()).
		Msg("Server started successfully")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		log.Info().Msg("Shutting down server...")
	case err := <-srv.ErrorChan():
		log.Error().Err(err).Msg("Server error")
		_ = srv.Stop()
		return err
	}

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}
