package chatbot

import (
	"context"
	"time"
)

// Outcome is the terminal state of one inbound message.
type Outcome string

// Outcomes. Only OutcomeCompleted writes to the session history.
const (
	OutcomeGreeting     Outcome = "greeting"
	OutcomeReset        Outcome = "reset"
	OutcomeHelp         Outcome = "help"
	OutcomeCompleted    Outcome = "completed"
	OutcomeTimedOut     Outcome = "timed_out"
	OutcomeBackendError Outcome = "backend_error"
	OutcomeEmptyResult  Outcome = "empty_result"
)

// Failed reports whether the outcome is a failed backend exchange.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeTimedOut, OutcomeBackendError, OutcomeEmptyResult:
		return true
	}
	return false
}

// Reply is the text returned to the sender.
type Reply struct {
	Text       string
	Outcome    Outcome
	ExchangeID string
}

// Exchange describes one handled message for audit and monitoring.
type Exchange struct {
	ID        string        `json:"id"`
	Sender    string        `json:"sender"`
	Input     string        `json:"input"`
	Reply     string        `json:"reply"`
	Outcome   Outcome       `json:"outcome"`
	Model     string        `json:"model,omitempty"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Recorder persists exchanges.
type Recorder interface {
	RecordExchange(ctx context.Context, ex Exchange) error
}

// Publisher broadcasts exchanges to live observers. Publish must not block.
type Publisher interface {
	Publish(ex Exchange)
}

// Messages holds the canned replies.
type Messages struct {
	Greeting      string
	ResetDone     string
	Help          string
	Timeout       string
	Failure       string
	Empty         string
	InternalError string
}

// DefaultMessages returns the built-in English replies.
func DefaultMessages() Messages {
	return Messages{
		Greeting:      "Hi there! I'm here to help with whatever you need, just ask away!",
		ResetDone:     "All set! I've reset everything, feel free to start fresh anytime.",
		Help:          "Send any question and I will answer it.\nSend \"reset\" to start a new conversation.",
		Timeout:       "That is taking me too long. Please try a shorter or more specific question.",
		Failure:       "Sorry, there was a problem processing your message. Please try again.",
		Empty:         "Sorry, I could not generate a reply right now. Could you try again?",
		InternalError: "Sorry, there was an internal error. Please try again later.",
	}
}

// withDefaults fills blank fields from DefaultMessages.
func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&m.Greeting, d.Greeting)
	fill(&m.ResetDone, d.ResetDone)
	fill(&m.Help, d.Help)
	fill(&m.Timeout, d.Timeout)
	fill(&m.Failure, d.Failure)
	fill(&m.Empty, d.Empty)
	fill(&m.InternalError, d.InternalError)
	return m
}
