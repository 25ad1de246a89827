package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with code that runs without a loaded config.
const (
	DefaultWindow        = 20
	DefaultHistoryTurns  = 2
	DefaultMaxReplyChars = 1500
	DefaultGenTimeout    = 12 * time.Second
)

// SetDefaults registers the default value of every key on the global
// viper instance.
func SetDefaults() {
	setDefaults(viper.GetViper())
}

// Defaults returns a Config holding only default values. Global state is
// not touched.
func Defaults() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("ollama.endpoint", "http://localhost:11434")
	v.SetDefault("ollama.model", "deepseek-r1:7b")
	v.SetDefault("ollama.timeout", DefaultGenTimeout)
	v.SetDefault("ollama.keep_alive", "5m")
	// Tuned for fast, terse replies on a length-capped chat channel.
	v.SetDefault("ollama.options.temperature", 0.1)
	v.SetDefault("ollama.options.top_p", 0.2)
	v.SetDefault("ollama.options.top_k", 3)
	v.SetDefault("ollama.options.num_predict", 50)
	v.SetDefault("ollama.options.num_ctx", 512)

	v.SetDefault("session.window", DefaultWindow)
	v.SetDefault("session.history_turns", DefaultHistoryTurns)
	v.SetDefault("session.idle_ttl", 24*time.Hour)
	v.SetDefault("session.sweep_schedule", "@every 10m")

	v.SetDefault("chat.context_file", "context.txt")
	v.SetDefault("chat.max_reply_chars", DefaultMaxReplyChars)
	v.SetDefault("chat.truncation_notice", "...\n\n(Reply truncated to fit the WhatsApp message limit)")

	v.SetDefault("messages.greeting", "Hi there! 😊 I’m here to help with whatever you need — just ask away!")
	v.SetDefault("messages.reset_done", "All set! 🔄 I’ve reset everything — feel free to start fresh anytime.")
	v.SetDefault("messages.help", "Send any question and I will answer it.\nSend \"reset\" to start a new conversation.")
	v.SetDefault("messages.timeout", "That is taking me too long. Please try a shorter or more specific question.")
	v.SetDefault("messages.failure", "Sorry, there was a problem processing your message. Please try again.")
	v.SetDefault("messages.empty", "Sorry, I could not generate a reply right now. Could you try again?")
	v.SetDefault("messages.internal_error", "Sorry, there was an internal error. Please try again later.")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.path", "~/.chatrelay/audit.db")

	v.SetDefault("feed.enabled", true)
}
