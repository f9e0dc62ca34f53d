package ws

import (
	"encoding/json"

	"github.com/wavechat/wavechat-backend/internal/domain"
	"github.com/wavechat/wavechat-backend/internal/service"
)

// Inbound event names (client → server)
const (
	EvMessageSend      = "message:send"
	EvTypingStart      = "typing:start"
	EvTypingStop       = "typing:stop"
	EvMessageRead      = "message:read"
	EvMessageDelivered = "message:delivered"
	EvMessageSeen      = "message:seen"
	EvChatCreate       = "chat:create"
	EvMessagesFetch    = "messages:fetch"
	EvMessagesSearch   = "messages:search"
	EvChatSummary      = "chat:summary"
)

// Outbound event names (server → client)
const (
	EvMessageNew          = "message:new"
	EvMessageBlocked      = "message:blocked"
	EvMessageError        = "message:error"
	EvMessagesSeen        = "messages:seen"
	EvChatCreated         = "chat:created"
	EvChatNew             = "chat:new"
	EvChatError           = "chat:error"
	EvUserStatus          = "user:status"
	EvMessagesFetched     = "messages:fetched"
	EvMessagesError       = "messages:error"
	EvSearchResults       = "messages:search:results"
	EvSearchError         = "messages:search:error"
	EvChatSummaryReply    = "chat:summary"
	EvChatSummaryError    = "chat:summary:error"
)

// Envelope is the wire frame for every event in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent marshals an outbound envelope
func EncodeEvent(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Inbound payloads

type SendMessagePayload struct {
	ChatID  uint64 `json:"chatId"`
	Content string `json:"content"`
	TempID  string `json:"tempId"`
}

type TypingPayload struct {
	ChatID uint64 `json:"chatId"`
}

type ReceiptPayload struct {
	ChatID    uint64 `json:"chatId"`
	MessageID uint64 `json:"messageId"`
}

type SeenPayload struct {
	ChatID     uint64   `json:"chatId"`
	MessageIDs []uint64 `json:"messageIds"`
}

type CreateChatPayload struct {
	IsGroup   bool     `json:"isGroup"`
	MemberIDs []uint64 `json:"memberIds"`
	Name      string   `json:"name,omitempty"`
}

type FetchPayload struct {
	ChatID uint64 `json:"chatId"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

type SearchPayload struct {
	Query string `json:"query"`
}

type SummaryPayload struct {
	ChatID uint64 `json:"chatId"`
}

// Outbound payloads

// SenderInfo identifies the message sender in fan-out payloads
type SenderInfo struct {
	ID       uint64 `json:"id"`
	Nickname string `json:"nickname"`
}

// MessageNewEvent carries the persisted message plus the client's echo id
type MessageNewEvent struct {
	*domain.Message
	Sender SenderInfo `json:"sender"`
	TempID string     `json:"tempId,omitempty"`
}

type MessageBlockedEvent struct {
	TempID string `json:"tempId"`
	Reason string `json:"reason"`
}

type MessageErrorEvent struct {
	TempID string `json:"tempId"`
	Error  string `json:"error"`
}

type TypingEvent struct {
	ChatID   uint64 `json:"chatId"`
	UserID   uint64 `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

type ReceiptEvent struct {
	MessageID uint64 `json:"messageId"`
	UserID    uint64 `json:"userId"`
}

type SeenEvent struct {
	MessageIDs []uint64 `json:"messageIds"`
	UserID     uint64   `json:"userId"`
}

type ChatErrorEvent struct {
	Error string `json:"error"`
}

type UserStatusEvent struct {
	UserID uint64 `json:"userId"`
	Online bool   `json:"online"`
}

type MessagesFetchedEvent struct {
	ChatID   uint64            `json:"chatId"`
	Messages []*domain.Message `json:"messages"`
}

type MessagesErrorEvent struct {
	Error string `json:"error"`
}

type SearchResultsEvent struct {
	Results []*domain.Message `json:"results"`
}

type SummaryEvent struct {
	ChatID  uint64 `json:"chatId"`
	Summary string `json:"summary"`
}

type SummaryErrorEvent struct {
	ChatID uint64 `json:"chatId,omitempty"`
	Error  string `json:"error"`
}

// ChatEvent is the chat:created / chat:new payload
type ChatEvent = service.ChatResponse
