package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pkglogger "github.com/wavechat/wavechat-backend/pkg/logger"
)

const redisRelayChannel = "wavechat:events"

// Transport is the narrow fan-out surface the session engine depends on.
// The hub implements it for real sockets; tests use an in-memory fake.
type Transport interface {
	SendToUser(userID uint64, event string, data interface{}) bool
	BroadcastRoom(chatID uint64, event string, data interface{}, excludeUserID uint64)
	BroadcastAll(event string, data interface{})
	JoinRoom(chatID, userID uint64) bool
	IsOnline(userID uint64) bool
}

// Hub is the presence registry and room fan-out. One connection per user:
// a reconnect replaces (and closes) the previous socket, last writer wins.
// Room broadcasts are a registry read plus independent per-connection sends;
// a stalled connection only loses its own events.
type Hub struct {
	mu        sync.RWMutex
	clients   map[uint64]*Client             // userID -> active client
	rooms     map[uint64]map[uint64]*Client  // chatID -> userID -> client
	userRooms map[uint64]map[uint64]struct{} // userID -> set of chatIDs

	// Optional multi-instance relay. Own messages are skipped by instance id
	// so a local broadcast is never applied twice.
	redisClient *redis.Client
	instanceID  string
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewHub creates a Hub. redisClient may be nil for single-instance mode.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[uint64]*Client),
		rooms:       make(map[uint64]map[uint64]*Client),
		userRooms:   make(map[uint64]map[uint64]struct{}),
		redisClient: redisClient,
		instanceID:  uuid.NewString(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the optional Redis relay subscriber
func (h *Hub) Run() {
	if h.redisClient != nil {
		go h.subscribeRelay()
	}
}

// Stop shuts down the relay subscriber
func (h *Hub) Stop() {
	h.cancel()
}

// Register installs the client as the user's active connection and returns
// the replaced one, if any. The caller closes the replaced client outside
// the lock.
func (h *Hub) Register(client *Client) *Client {
	h.mu.Lock()
	previous := h.clients[client.userID]
	if previous != nil {
		h.detachLocked(previous)
	}
	h.clients[client.userID] = client
	h.userRooms[client.userID] = make(map[uint64]struct{})
	h.mu.Unlock()
	return previous
}

// Unregister removes the client if it is still the user's active connection.
// Returns true when this was the active connection (exactly one caller should
// then emit the offline presence broadcast).
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	current, ok := h.clients[client.userID]
	if !ok || current != client {
		return false
	}
	h.detachLocked(client)
	return true
}

func (h *Hub) detachLocked(client *Client) {
	delete(h.clients, client.userID)
	for chatID := range h.userRooms[client.userID] {
		if room := h.rooms[chatID]; room != nil {
			delete(room, client.userID)
			if len(room) == 0 {
				delete(h.rooms, chatID)
			}
		}
	}
	delete(h.userRooms, client.userID)
}

// JoinRoom subscribes the user's active connection to a chat room.
// Returns false when the user has no active connection.
func (h *Hub) JoinRoom(chatID, userID uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[userID]
	if !ok {
		return false
	}
	room := h.rooms[chatID]
	if room == nil {
		room = make(map[uint64]*Client)
		h.rooms[chatID] = room
	}
	room[userID] = client
	memberships := h.userRooms[userID]
	if memberships == nil {
		memberships = make(map[uint64]struct{})
		h.userRooms[userID] = memberships
	}
	memberships[chatID] = struct{}{}
	return true
}

// IsOnline reports whether the user has an active connection on this instance
func (h *Hub) IsOnline(userID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SendToUser delivers one event to the user's active connection
func (h *Hub) SendToUser(userID uint64, event string, data interface{}) bool {
	payload, err := EncodeEvent(event, data)
	if err != nil {
		pkglogger.GetLogger().Error().Err(err).Str("event", event).Msg("encode event failed")
		return false
	}

	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if ok {
		client.enqueue(payload)
	}
	h.relay(relayMessage{Scope: relayUser, UserID: userID, Payload: payload})
	return ok
}

// BroadcastRoom fans an event out to every connection subscribed to the chat.
// excludeUserID 0 means nobody is excluded.
func (h *Hub) BroadcastRoom(chatID uint64, event string, data interface{}, excludeUserID uint64) {
	payload, err := EncodeEvent(event, data)
	if err != nil {
		pkglogger.GetLogger().Error().Err(err).Str("event", event).Msg("encode event failed")
		return
	}
	h.deliverRoom(chatID, payload, excludeUserID)
	h.relay(relayMessage{Scope: relayRoom, ChatID: chatID, ExcludeUserID: excludeUserID, Payload: payload})
	broadcastsTotal.WithLabelValues(event).Inc()
}

// BroadcastAll delivers an event to every active connection
func (h *Hub) BroadcastAll(event string, data interface{}) {
	payload, err := EncodeEvent(event, data)
	if err != nil {
		pkglogger.GetLogger().Error().Err(err).Str("event", event).Msg("encode event failed")
		return
	}
	h.deliverAll(payload)
	h.relay(relayMessage{Scope: relayAll, Payload: payload})
	broadcastsTotal.WithLabelValues(event).Inc()
}

func (h *Hub) deliverRoom(chatID uint64, payload []byte, excludeUserID uint64) {
	h.mu.RLock()
	room := h.rooms[chatID]
	targets := make([]*Client, 0, len(room))
	for userID, client := range room {
		if excludeUserID != 0 && userID == excludeUserID {
			continue
		}
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.enqueue(payload)
	}
}

func (h *Hub) deliverAll(payload []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.enqueue(payload)
	}
}

type relayScope string

const (
	relayUser relayScope = "user"
	relayRoom relayScope = "room"
	relayAll  relayScope = "all"
)

type relayMessage struct {
	Instance      string     `json:"instance"`
	Scope         relayScope `json:"scope"`
	UserID        uint64     `json:"user_id,omitempty"`
	ChatID        uint64     `json:"chat_id,omitempty"`
	ExcludeUserID uint64     `json:"exclude_user_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

func (h *Hub) relay(msg relayMessage) {
	if h.redisClient == nil {
		return
	}
	msg.Instance = h.instanceID
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.redisClient.Publish(h.ctx, redisRelayChannel, data) //nolint:errcheck
}

// subscribeRelay applies events published by peer instances
func (h *Hub) subscribeRelay() {
	pubsub := h.redisClient.Subscribe(h.ctx, redisRelayChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var rm relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &rm); err != nil {
				continue
			}
			if rm.Instance == h.instanceID {
				continue
			}
			switch rm.Scope {
			case relayUser:
				h.mu.RLock()
				client, ok := h.clients[rm.UserID]
				h.mu.RUnlock()
				if ok {
					client.enqueue(rm.Payload)
				}
			case relayRoom:
				h.deliverRoom(rm.ChatID, rm.Payload, rm.ExcludeUserID)
			case relayAll:
				h.deliverAll(rm.Payload)
			}
		case <-h.ctx.Done():
			return
		}
	}
}
