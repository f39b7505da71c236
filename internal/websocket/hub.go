package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"kb-assistant/internal/pkg/logger"
	"kb-assistant/pkg/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	clusterChannel = "kb_assistant_cluster_events"
	broadcastKey   = "*"
)

// Message is what a websocket client receives
type Message struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

type Hub struct {
	// Registered clients: SessionID -> clients (several tabs may follow one session)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// Optional Redis connection for cross-instance delivery
	rdb        *redis.Client
	instanceID string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"session_id": client.SessionID})

		case client := <-h.unregister:
			h.mu.Lock()
			clients := h.clients[client.SessionID]
			for i, c := range clients {
				if c == client {
					h.clients[client.SessionID] = append(clients[:i], clients[i+1:]...)
					close(client.Send)
					break
				}
			}
			if len(h.clients[client.SessionID]) == 0 {
				delete(h.clients, client.SessionID)
				h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"session_id": client.SessionID})
			}
			h.mu.Unlock()
		}
	}
}

// Send delivers event to every client following sessionID, here and on other instances.
func (h *Hub) Send(sessionID string, event events.Event) {
	data, err := encode(event)
	if err != nil {
		h.logger.Error("Hub", "Failed to encode event", map[string]interface{}{"error": err.Error()})
		return
	}
	h.deliver(sessionID, data)
	h.publishCluster(sessionID, data)
}

// Broadcast delivers event to every connected client.
func (h *Hub) Broadcast(event events.Event) {
	data, err := encode(event)
	if err != nil {
		h.logger.Error("Hub", "Failed to encode event", map[string]interface{}{"error": err.Error()})
		return
	}
	h.deliver(broadcastKey, data)
	h.publishCluster(broadcastKey, data)
}

// ClientCount is the number of clients following sessionID
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

func encode(event events.Event) ([]byte, error) {
	return json.Marshal(Message{
		Type:       event.EventType(),
		Data:       event.Payload(),
		OccurredAt: event.Timestamp(),
	})
}

// deliver writes to local clients only. Slow clients are dropped.
// Sends happen under the read lock so unregister cannot close a channel mid-send.
func (h *Hub) deliver(target string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if target == broadcastKey {
		for _, clients := range h.clients {
			h.offer(clients, data)
		}
		return
	}
	h.offer(h.clients[target], data)
}

func (h *Hub) offer(clients []*Client, data []byte) {
	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("Hub", "Client Send buffer full, dropping client", map[string]interface{}{"session_id": client.SessionID})
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

func (h *Hub) publishCluster(target string, data []byte) {
	if h.rdb == nil {
		return
	}
	payload, _ := json.Marshal(clusterMessage{Origin: h.instanceID, Target: target, Message: data})
	if err := h.rdb.Publish(context.Background(), clusterChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Failed to publish to Redis", map[string]interface{}{"error": err.Error()})
	}
}

type clusterMessage struct {
	Origin  string          `json:"origin"`
	Target  string          `json:"target_session_id"`
	Message json.RawMessage `json:"message"`
}

// subscribeToRedis relays events published by other instances to local clients.
func (h *Hub) subscribeToRedis() {
	pubsub := h.rdb.Subscribe(context.Background(), clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var payload clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn("Hub", "Redis message parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		if payload.Origin == h.instanceID {
			continue
		}
		h.deliver(payload.Target, payload.Message)
	}
}
