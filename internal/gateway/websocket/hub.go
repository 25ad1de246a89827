package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"chatrelay/pkg/logger"
)

// Hub tracks feed clients and fans events out to them.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage
	stop       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex
}

// NewHub creates a new Hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		stop:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			// send stays open, readPump may still reply to a control message
			for client := range h.clients {
				delete(h.clients, client)
				if client.conn != nil {
					client.conn.Close()
				}
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Info().Str("client_id", client.id).Msg("Feed client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logger.Info().Str("client_id", client.id).Msg("Feed client disconnected")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.wants(msg.Topic) {
					continue
				}
				select {
				case client.send <- msg.Data:
				default:
					// slow client, drop the event
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop ends Run and closes every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stop:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// Subscribe limits client to the given topic in addition to any it
// already has. Unknown topics are ignored.
func (h *Hub) Subscribe(client *Client, topic string) bool {
	if !topics[topic] {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	client.topics[topic] = true
	return true
}

// Unsubscribe removes topic from client. A client with no topics receives
// every event.
func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(client.topics, topic)
}

// BroadcastTyped encodes payload as a message of type messageType and
// queues it for every interested client. It never blocks: when the queue
// is full the event is dropped and false is returned.
func (h *Hub) BroadcastTyped(messageType string, payload any) bool {
	data, err := json.Marshal(FeedMessage{
		Type: messageType,
		Data: payload,
		Time: time.Now().UTC(),
	})
	if err != nil {
		logger.Error().Err(err).Str("type", messageType).Msg("Failed to marshal feed message")
		return false
	}

	select {
	case h.broadcast <- &broadcastMessage{Topic: messageType, Data: data}:
		return true
	default:
		logger.Warn().Str("type", messageType).Msg("Feed queue full, dropping event")
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
