package prompt

import (
	"chatrelay/internal/provider"
	"chatrelay/internal/session"
)

// DefaultHistoryTurns is how many stored turns accompany each request.
const DefaultHistoryTurns = 2

// SessionReader is the part of the session store the assembler needs.
type SessionReader interface {
	GetOrCreate(key string) session.Session
}

// Assembler builds the model input for one exchange. It never writes to
// the session store.
type Assembler struct {
	sessions      SessionReader
	systemContext string
	historyTurns  int
}

// NewAssembler creates an assembler. A negative historyTurns selects
// DefaultHistoryTurns; zero sends no history.
func NewAssembler(sessions SessionReader, systemContext string, historyTurns int) *Assembler {
	if historyTurns < 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &Assembler{
		sessions:      sessions,
		systemContext: systemContext,
		historyTurns:  historyTurns,
	}
}

// SystemContext returns the context sent as the system message.
func (a *Assembler) SystemContext() string {
	return a.systemContext
}

// HistoryTurns returns the number of stored turns considered per request.
func (a *Assembler) HistoryTurns() int {
	return a.historyTurns
}

// BuildMessages returns the system message, then the user and assistant
// turns among the last historyTurns stored for key, then userMessage.
func (a *Assembler) BuildMessages(key, userMessage string) []provider.Message {
	sess := a.sessions.GetOrCreate(key)
	recent := sess.Recent(a.historyTurns)

	messages := make([]provider.Message, 0, len(recent)+2)
	messages = append(messages, provider.Message{
		Role:    provider.RoleSystem,
		Content: a.systemContext,
	})

	for _, turn := range recent {
		if !turn.Role.Conversational() {
			continue
		}
		messages = append(messages, provider.Message{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}

	return append(messages, provider.Message{
		Role:    provider.RoleUser,
		Content: userMessage,
	})
}
