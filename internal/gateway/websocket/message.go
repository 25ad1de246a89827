// Package websocket serves the operator event feed over WebSocket.
package websocket

import "time"

// FeedMessage is a message sent to or received from a feed client.
type FeedMessage struct {
	Type    string    `json:"type"`
	Topic   string    `json:"topic,omitempty"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
	Path    string    `json:"path,omitempty"`
	Data    any       `json:"data,omitempty"`
	Time    time.Time `json:"time,omitempty"`
}

// ExchangeEvent is the payload of an exchange message. Sender keys are
// masked before they leave the process.
type ExchangeEvent struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Outcome   string `json:"outcome"`
	Model     string `json:"model,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	InputLen  int    `json:"input_len"`
	ReplyLen  int    `json:"reply_len"`
}

// broadcastMessage is an encoded event and the topic it belongs to.
type broadcastMessage struct {
	Topic string
	Data  []byte
}

// Message types.
const (
	// client to server
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"

	// server to client
	TypePong           = "pong"
	TypeError          = "error"
	TypeExchange       = "exchange"
	TypeSessionReset   = "session_reset"
	TypeConfigReloaded = "config_reloaded"
)

// topics clients may subscribe to.
var topics = map[string]bool{
	TypeExchange:       true,
	TypeSessionReset:   true,
	TypeConfigReloaded: true,
}
