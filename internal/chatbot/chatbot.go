// Package chatbot drives a single inbound message from command dispatch
// through generation to the reply text.
package chatbot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/inference"
	"chatrelay/internal/prompt"
	"chatrelay/internal/provider"
	"chatrelay/internal/session"
	"chatrelay/pkg/logger"
)

var greetings = map[string]bool{
	"hola":          true,
	"hi":            true,
	"hello":         true,
	"buenas":        true,
	"buenos dias":   true,
	"buenas tardes": true,
	"buenas noches": true,
}

var (
	resetCommands = map[string]bool{"reset": true, "/reset": true}
	helpCommands  = map[string]bool{"help": true, "/help": true}
)

// Generator produces model replies.
type Generator interface {
	Generate(ctx context.Context, messages []provider.Message) (*inference.Result, error)
	Truncate(text string) string
	Model() string
}

// Config wires a Bot.
type Config struct {
	Store     *session.Store
	Assembler *prompt.Assembler
	Generator Generator
	Messages  Messages

	// Optional.
	Recorder  Recorder
	Publisher Publisher
}

// Bot answers inbound messages.
type Bot struct {
	store     *session.Store
	assembler *prompt.Assembler
	gen       Generator
	msgs      Messages
	recorder  Recorder
	publisher Publisher
	now       func() time.Time
}

// New creates a Bot from cfg.
func New(cfg Config) (*Bot, error) {
	if cfg.Store == nil {
		return nil, errors.New("chatbot: session store is required")
	}
	if cfg.Assembler == nil {
		return nil, errors.New("chatbot: assembler is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("chatbot: generator is required")
	}
	return &Bot{
		store:     cfg.Store,
		assembler: cfg.Assembler,
		gen:       cfg.Generator,
		msgs:      cfg.Messages.withDefaults(),
		recorder:  cfg.Recorder,
		publisher: cfg.Publisher,
		now:       time.Now,
	}, nil
}

// Messages returns the canned replies in use.
func (b *Bot) Messages() Messages {
	return b.msgs
}

// Model returns the model replies are generated with.
func (b *Bot) Model() string {
	return b.gen.Model()
}

// Sessions returns the number of live sessions.
func (b *Bot) Sessions() int {
	return b.store.Len()
}

// Respond answers text from sender. It never fails: every error becomes a
// canned reply.
func (b *Bot) Respond(ctx context.Context, sender, text string) Reply {
	text = strings.TrimSpace(text)
	command := strings.ToLower(text)

	ex := Exchange{
		ID:        uuid.NewString(),
		Sender:    sender,
		Input:     text,
		CreatedAt: b.now(),
	}

	switch {
	case text == "" || greetings[command]:
		ex.Outcome, ex.Reply = OutcomeGreeting, b.msgs.Greeting
	case resetCommands[command]:
		b.reset(sender)
		logger.Exchange(sender, text).Info().Msg("Session reset")
		ex.Outcome, ex.Reply = OutcomeReset, b.msgs.ResetDone
	case helpCommands[command]:
		ex.Outcome, ex.Reply = OutcomeHelp, b.msgs.Help
	default:
		b.exchange(ctx, &ex)
	}

	b.report(ctx, ex)

	return Reply{Text: ex.Reply, Outcome: ex.Outcome, ExchangeID: ex.ID}
}

// reset clears the session once any exchange in flight for sender has
// appended its turns.
func (b *Bot) reset(sender string) {
	unlock := b.store.Lock(sender)
	defer unlock()
	b.store.Reset(sender)
}

// exchange runs one generation under the sender's lock and fills in the
// outcome and reply of ex.
func (b *Bot) exchange(ctx context.Context, ex *Exchange) {
	unlock := b.store.Lock(ex.Sender)
	defer unlock()

	log := logger.Exchange(ex.Sender, ex.Input)
	ex.Model = b.gen.Model()

	messages := b.assembler.BuildMessages(ex.Sender, ex.Input)

	start := time.Now()
	res, err := b.gen.Generate(ctx, messages)
	ex.Latency = time.Since(start)

	if err != nil {
		ex.Error = err.Error()
		switch {
		case errors.Is(err, inference.ErrTimeout):
			ex.Outcome, ex.Reply = OutcomeTimedOut, b.msgs.Timeout
			log.Warn().Dur("latency", ex.Latency).Msg("Generation timed out")
		case errors.Is(err, inference.ErrEmptyResult):
			ex.Outcome, ex.Reply = OutcomeEmptyResult, b.msgs.Empty
			log.Warn().Str("model", ex.Model).Msg("Model returned an empty reply")
		default:
			ex.Outcome, ex.Reply = OutcomeBackendError, b.msgs.Failure
			log.Error().Err(err).Dur("latency", ex.Latency).Msg("Generation failed")
		}
		return
	}

	b.store.Append(ex.Sender, session.RoleUser, ex.Input)
	b.store.Append(ex.Sender, session.RoleAssistant, res.Text)

	if res.Model != "" {
		ex.Model = res.Model
	}
	ex.Outcome = OutcomeCompleted
	ex.Reply = b.gen.Truncate(res.Text)

	log.Info().
		Str("exchange_id", ex.ID).
		Dur("latency", ex.Latency).
		Int("reply_chars", len([]rune(res.Text))).
		Bool("truncated", ex.Reply != res.Text).
		Msg("Exchange completed")
}

func (b *Bot) report(ctx context.Context, ex Exchange) {
	if b.recorder != nil {
		if err := b.recorder.RecordExchange(context.WithoutCancel(ctx), ex); err != nil {
			logger.Warn().Err(err).Str("exchange_id", ex.ID).Msg("Failed to record exchange")
		}
	}
	if b.publisher != nil {
		b.publisher.Publish(ex)
	}
}
