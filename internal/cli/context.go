package cli

import (
	"errors"
	"sync"

	"chatrelay/internal/config"
	"chatrelay/internal/provider/ollama"
	"chatrelay/internal/storage"
	"chatrelay/pkg/logger"

	"github.com/rs/zerolog"
)

var errCLIContext = errors.New("CLI context not initialized")

// CLIContext carries the loaded config and lazily opened resources.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zerolog.Logger
	Verbose    bool
	Quiet      bool

	auditOnce sync.Once
	audit     *storage.DB
	auditErr  error
}

// NewCLIContext creates a CLI context.
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// GetAuditDB opens the audit database on first use.
func (c *CLIContext) GetAuditDB() (*storage.DB, error) {
	c.auditOnce.Do(func() {
		c.audit, c.auditErr = storage.Open(c.Config.Audit.Path)
	})
	return c.audit, c.auditErr
}

// Backend returns an Ollama client for the configured endpoint and model.
func (c *CLIContext) Backend() *ollama.OllamaProvider {
	return ollama.NewOllamaProvider(ollama.Config{
		Endpoint:  c.Config.Ollama.Endpoint,
		Model:     c.Config.Ollama.Model,
		KeepAlive: c.Config.Ollama.KeepAlive,
	})
}

// Close releases opened resources.
func (c *CLIContext) Close() error {
	if c.audit != nil {
		return c.audit.Close()
	}
	return nil
}

// Log returns the command logger.
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
