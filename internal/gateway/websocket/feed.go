package websocket

import (
	"strings"

	"chatrelay/internal/chatbot"
)

// Feed publishes chatbot exchanges to a Hub.
type Feed struct {
	hub *Hub
}

// NewFeed creates a Feed broadcasting on hub.
func NewFeed(hub *Hub) *Feed {
	return &Feed{hub: hub}
}

// Publish implements chatbot.Publisher. Resets are sent as session_reset
// events, everything else as exchange events.
func (f *Feed) Publish(ex chatbot.Exchange) {
	event := ExchangeEvent{
		ID:        ex.ID,
		Sender:    MaskSender(ex.Sender),
		Outcome:   string(ex.Outcome),
		Model:     ex.Model,
		LatencyMS: ex.Latency.Milliseconds(),
		InputLen:  len([]rune(ex.Input)),
		ReplyLen:  len([]rune(ex.Reply)),
	}

	msgType := TypeExchange
	if ex.Outcome == chatbot.OutcomeReset {
		msgType = TypeSessionReset
	}
	f.hub.BroadcastTyped(msgType, event)
}

// ConfigReloaded announces that the configuration file at path was
// reloaded.
func (f *Feed) ConfigReloaded(path string) {
	f.hub.BroadcastTyped(TypeConfigReloaded, map[string]string{"path": path})
}

// MaskSender hides all but the last four characters of the address part
// of a sender key, keeping any channel prefix such as "whatsapp:".
func MaskSender(sender string) string {
	prefix, addr := "", sender
	if i := strings.LastIndex(sender, ":"); i >= 0 {
		prefix, addr = sender[:i+1], sender[i+1:]
	}

	runes := []rune(addr)
	if len(runes) <= 4 {
		return prefix + "****"
	}
	return prefix + "****" + string(runes[len(runes)-4:])
}
