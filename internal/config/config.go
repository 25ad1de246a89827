package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// CHATRELAY_OLLAMA_MODEL.
const EnvPrefix = "CHATRELAY"

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Ollama   OllamaConfig   `mapstructure:"ollama" yaml:"ollama"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Chat     ChatConfig     `mapstructure:"chat" yaml:"chat"`
	Messages MessagesConfig `mapstructure:"messages" yaml:"messages"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`
	Feed     FeedConfig     `mapstructure:"feed" yaml:"feed"`
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// OllamaConfig configures the local inference backend.
type OllamaConfig struct {
	Endpoint  string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model     string        `mapstructure:"model" yaml:"model"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"` // per-exchange generation bound
	KeepAlive string        `mapstructure:"keep_alive" yaml:"keep_alive"`
	Options   OptionsConfig `mapstructure:"options" yaml:"options"`
}

// OptionsConfig holds the fixed decoding options sent with every request.
type OptionsConfig struct {
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64 `mapstructure:"top_p" yaml:"top_p"`
	TopK        int     `mapstructure:"top_k" yaml:"top_k"`
	NumPredict  int     `mapstructure:"num_predict" yaml:"num_predict"`
	NumCtx      int     `mapstructure:"num_ctx" yaml:"num_ctx"`
}

// SessionConfig configures per-sender history.
type SessionConfig struct {
	Window        int           `mapstructure:"window" yaml:"window"`               // turns kept per sender
	HistoryTurns  int           `mapstructure:"history_turns" yaml:"history_turns"` // turns sent per request
	IdleTTL       time.Duration `mapstructure:"idle_ttl" yaml:"idle_ttl"`           // 0 disables the sweep
	SweepSchedule string        `mapstructure:"sweep_schedule" yaml:"sweep_schedule"`
}

// ChatConfig configures prompt loading and reply shaping.
type ChatConfig struct {
	ContextFile      string `mapstructure:"context_file" yaml:"context_file"`
	MaxReplyChars    int    `mapstructure:"max_reply_chars" yaml:"max_reply_chars"`
	TruncationNotice string `mapstructure:"truncation_notice" yaml:"truncation_notice"`
}

// MessagesConfig holds the canned user-visible texts.
type MessagesConfig struct {
	Greeting      string `mapstructure:"greeting" yaml:"greeting"`
	ResetDone     string `mapstructure:"reset_done" yaml:"reset_done"`
	Help          string `mapstructure:"help" yaml:"help"`
	Timeout       string `mapstructure:"timeout" yaml:"timeout"`
	Failure       string `mapstructure:"failure" yaml:"failure"`
	Empty         string `mapstructure:"empty" yaml:"empty"`
	InternalError string `mapstructure:"internal_error" yaml:"internal_error"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// AuditConfig configures the exchange audit log.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// FeedConfig configures the operator websocket feed.
type FeedConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load reads configuration with priority ENV > file > defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigParseError); ok {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the last loaded configuration.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Path returns the resolved path of the loaded config file, if any.
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// Get returns the raw value of key, or nil when unset.
func Get(key string) any {
	return viper.Get(key)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// Set updates a value and persists it when a config file is in use.
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	if configPath != "" {
		return save()
	}
	return nil
}

// Save writes the current settings to the loaded config file.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save requires mu to be held.
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo writes cfg as YAML to path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Reset clears loaded state. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
