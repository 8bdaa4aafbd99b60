// Package websocket delivers realtime events to connected staff. Clients are
// registered on topics (their own user topic, their role topics and the
// shared emergencies topic) and receive every event published to them.
package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edhub/edhub/internal/platform/metrics"
)

// Event types pushed to clients.
const (
	EventNotification     = "notification"
	EventEmergencyChanged = "emergency.changed"
	EventAmbulanceChanged = "ambulance.changed"
	EventServerShutdown   = "server.shutdown"
)

// TopicEmergencies carries intake, status and fleet changes for every staff
// member.
const TopicEmergencies = "emergencies"

// UserTopic is the private topic of a single user.
func UserTopic(userID string) string { return "user:" + userID }

// RoleTopic is shared by every connected user holding role.
func RoleTopic(role string) string { return "role:" + role }

// Event represents a realtime message sent to clients.
type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	EntityType string          `json:"entityType,omitempty"`
	EntityID   string          `json:"entityId,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals data into an Event addressed to topic.
func NewEvent(eventType, topic string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      eventType,
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// ClientMessage represents an inbound message from a client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// EventPublisher defines the interface for publishing events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client represents a single realtime connection.
type Client struct {
	ID     string
	UserID string
	Roles  []string
	Topics []string
	Send   chan []byte
	hub    *Hub
}

// mayJoin reports whether the client is allowed to listen on topic. Users
// only ever see their own private topic and the roles they hold.
func (c *Client) mayJoin(topic string) bool {
	switch {
	case topic == TopicEmergencies:
		return true
	case strings.HasPrefix(topic, "user:"):
		return topic == UserTopic(c.UserID)
	case strings.HasPrefix(topic, "role:"):
		for _, r := range c.Roles {
			if topic == RoleTopic(r) {
				return true
			}
		}
	}
	return false
}

// Hub tracks clients and their topic subscriptions. All operations are
// guarded by a sync.RWMutex.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.hub = h
	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(client, topic)
	}
	metrics.WebSocketClients.Inc()
}

func (h *Hub) addLocked(client *Client, topic string) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(client *Client, topic string) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Unregister removes a client from all topics and closes its Send channel.
// Calling it twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
	metrics.WebSocketClients.Dec()
}

// Subscribe adds topics to a registered client. Topics the client may not
// join are dropped and returned.
func (h *Hub) Subscribe(client *Client, topics []string) (rejected []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return topics
	}
	for _, topic := range topics {
		if !client.mayJoin(topic) {
			rejected = append(rejected, topic)
			continue
		}
		if _, already := h.clients[topic][client]; already {
			continue
		}
		h.addLocked(client, topic)
		client.Topics = append(client.Topics, topic)
	}
	return rejected
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
		h.removeLocked(client, t)
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage dispatches an inbound ClientMessage.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if rejected := h.Subscribe(client, msg.Topics); len(rejected) > 0 {
			h.logger.Warn().
				Str("client_id", client.ID).
				Str("user_id", client.UserID).
				Strs("topics", rejected).
				Msg("websocket: subscription denied")
		}
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast sends an event to all clients subscribed to topic. Clients whose
// buffer is full are skipped rather than blocking the publisher.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("websocket: failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Msg("websocket: send buffer full, dropping event")
		}
	}
}

// BroadcastAll sends an event to every connected client regardless of topic.
func (h *Hub) BroadcastAll(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket: failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.all {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// Publish implements EventPublisher for a single instance.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Topic, event)
	metrics.IncRealtimePublished("local", nil)
	return nil
}

// Shutdown tells every client the server is going away and disconnects them.
func (h *Hub) Shutdown() {
	h.BroadcastAll(Event{Type: EventServerShutdown, Timestamp: time.Now().UTC()})

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.all))
	for c := range h.all {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to a specific topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
