// Package session keeps the bounded, per-sender conversation history.
package session

import "time"

// Role identifies who produced a turn.
type Role string

// Roles stored in a session.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversational reports whether r is a user or assistant turn.
func (r Role) Conversational() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message exchanged in a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a point-in-time copy of one sender's history, oldest first.
type Session struct {
	Key        string    `json:"key"`
	Turns      []Turn    `json:"turns"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Len returns the number of turns.
func (s Session) Len() int {
	return len(s.Turns)
}

// Recent returns up to k of the newest turns in chronological order.
func (s Session) Recent(k int) []Turn {
	if k <= 0 || len(s.Turns) == 0 {
		return nil
	}
	if k > len(s.Turns) {
		k = len(s.Turns)
	}
	return s.Turns[len(s.Turns)-k:]
}
