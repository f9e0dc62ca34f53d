package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/wavechat/wavechat-backend/internal/common"
	"github.com/wavechat/wavechat-backend/internal/domain"
	"github.com/wavechat/wavechat-backend/internal/service"
	pkglogger "github.com/wavechat/wavechat-backend/pkg/logger"
)

// Session identifies the authenticated user behind a connection
type Session struct {
	UserID   uint64
	Nickname string
}

// ChatStore is the persistence orchestration surface the engine needs.
// service.ChatService satisfies it; engine tests use an in-memory fake.
type ChatStore interface {
	ChatIDsForUser(userID uint64) ([]uint64, error)
	SetOnline(userID uint64, online bool) error
	SaveMessage(chatID, senderID uint64, content string, flagged bool) (*domain.Message, error)
	RecordModeration(msg *domain.Message, result service.ModerationResult)
	MarkDelivered(messageID, userID uint64) error
	MarkRead(chatID, messageID, userID uint64) error
	MarkSeen(chatID, userID uint64, messageIDs []uint64) []uint64
	GetOrCreateDirectChat(creatorID, targetID uint64) (*domain.Chat, bool, error)
	CreateGroupChat(creatorID uint64, name string, memberIDs []uint64) (*domain.Chat, error)
	EnrichChat(chat *domain.Chat) *service.ChatResponse
	FetchMessages(chatID, userID uint64, limit, offset int) ([]*domain.Message, error)
	SearchMessages(userID uint64, query string) ([]*domain.Message, error)
	SummaryInput(chatID, userID uint64) ([]*domain.Message, error)
}

type handlerFunc func(sess *Session, data json.RawMessage)

// Engine is the session protocol core: it interprets inbound events, drives
// the moderation gate and the persistence layer, and fans results out through
// the transport. Per-connection handling is serial (the read pump dispatches
// synchronously); connections run concurrently.
type Engine struct {
	transport Transport
	store     ChatStore
	moderator service.Moderator
	handlers  map[string]handlerFunc
}

// NewEngine wires the dispatch table
func NewEngine(transport Transport, store ChatStore, moderator service.Moderator) *Engine {
	e := &Engine{
		transport: transport,
		store:     store,
		moderator: moderator,
	}
	e.handlers = map[string]handlerFunc{
		EvMessageSend:      e.handleSendMessage,
		EvTypingStart:      e.typingHandler(EvTypingStart),
		EvTypingStop:       e.typingHandler(EvTypingStop),
		EvMessageRead:      e.handleMarkRead,
		EvMessageDelivered: e.handleMarkDelivered,
		EvMessageSeen:      e.handleMarkSeen,
		EvChatCreate:       e.handleCreateChat,
		EvMessagesFetch:    e.handleFetchMessages,
		EvMessagesSearch:   e.handleSearchMessages,
		EvChatSummary:      e.handleSummary,
	}
	return e
}

// HandleConnect joins the connection to its chats' rooms and marks the user
// online. Runs after the hub registration succeeded.
func (e *Engine) HandleConnect(sess *Session) {
	chatIDs, err := e.store.ChatIDsForUser(sess.UserID)
	if err != nil {
		pkglogger.GetLogger().Error().Err(err).Uint64("user_id", sess.UserID).Msg("load memberships failed")
	}
	for _, chatID := range chatIDs {
		e.transport.JoinRoom(chatID, sess.UserID)
	}

	if err := e.store.SetOnline(sess.UserID, true); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Uint64("user_id", sess.UserID).Msg("online update failed")
	}
	e.transport.BroadcastAll(EvUserStatus, UserStatusEvent{UserID: sess.UserID, Online: true})
	connectionsActive.Inc()
}

// HandleDisconnect marks the user offline and broadcasts the status change
// exactly once per closed active connection (the hub guards the "active"
// part; a replaced socket does not get here).
func (e *Engine) HandleDisconnect(sess *Session) {
	if err := e.store.SetOnline(sess.UserID, false); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Uint64("user_id", sess.UserID).Msg("offline update failed")
	}
	e.transport.BroadcastAll(EvUserStatus, UserStatusEvent{UserID: sess.UserID, Online: false})
}

// HandleEvent decodes one inbound frame and runs the matching handler
func (e *Engine) HandleEvent(sess *Session, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Uint64("user_id", sess.UserID).Msg("bad event frame")
		return
	}
	handler, ok := e.handlers[env.Event]
	if !ok {
		pkglogger.GetLogger().Warn().Str("event", env.Event).Uint64("user_id", sess.UserID).Msg("unknown event")
		return
	}
	eventsTotal.WithLabelValues(env.Event).Inc()
	handler(sess, env.Data)
}

func (e *Engine) handleSendMessage(sess *Session, data json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	result := e.moderator.Classify(context.Background(), p.Content)
	if result.Verdict == service.VerdictBlock {
		messagesBlocked.Inc()
		e.transport.SendToUser(sess.UserID, EvMessageBlocked, MessageBlockedEvent{
			TempID: p.TempID,
			Reason: result.Reason,
		})
		return
	}

	msg, err := e.store.SaveMessage(p.ChatID, sess.UserID, p.Content, result.Verdict == service.VerdictFlag)
	if err != nil {
		e.transport.SendToUser(sess.UserID, EvMessageError, MessageErrorEvent{
			TempID: p.TempID,
			Error:  "failed to save message",
		})
		return
	}
	e.store.RecordModeration(msg, result)

	// Sender included: the echo carries tempId so the client reconciles
	// its optimistic copy.
	e.transport.BroadcastRoom(p.ChatID, EvMessageNew, MessageNewEvent{
		Message: msg,
		Sender:  SenderInfo{ID: sess.UserID, Nickname: sess.Nickname},
		TempID:  p.TempID,
	}, 0)
}

func (e *Engine) typingHandler(event string) handlerFunc {
	return func(sess *Session, data json.RawMessage) {
		var p TypingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		// Fire and forget, no persistence
		e.transport.BroadcastRoom(p.ChatID, event, TypingEvent{
			ChatID:   p.ChatID,
			UserID:   sess.UserID,
			UserName: sess.Nickname,
		}, sess.UserID)
	}
}

func (e *Engine) handleMarkRead(sess *Session, data json.RawMessage) {
	var p ReceiptPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if err := e.store.MarkRead(p.ChatID, p.MessageID, sess.UserID); err != nil {
		// Swallow and log, no retry
		pkglogger.GetLogger().Warn().Err(err).Uint64("message_id", p.MessageID).Msg("mark read failed")
		return
	}
	e.transport.BroadcastRoom(p.ChatID, EvMessageRead, ReceiptEvent{
		MessageID: p.MessageID,
		UserID:    sess.UserID,
	}, sess.UserID)
}

func (e *Engine) handleMarkDelivered(sess *Session, data json.RawMessage) {
	var p ReceiptPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if err := e.store.MarkDelivered(p.MessageID, sess.UserID); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Uint64("message_id", p.MessageID).Msg("mark delivered failed")
		return
	}
	e.transport.BroadcastRoom(p.ChatID, EvMessageDelivered, ReceiptEvent{
		MessageID: p.MessageID,
		UserID:    sess.UserID,
	}, sess.UserID)
}

func (e *Engine) handleMarkSeen(sess *Session, data json.RawMessage) {
	var p SeenPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	seen := e.store.MarkSeen(p.ChatID, sess.UserID, p.MessageIDs)
	if len(seen) == 0 {
		return
	}
	e.transport.BroadcastRoom(p.ChatID, EvMessagesSeen, SeenEvent{
		MessageIDs: seen,
		UserID:     sess.UserID,
	}, sess.UserID)
}

func (e *Engine) handleCreateChat(sess *Session, data json.RawMessage) {
	var p CreateChatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	if !p.IsGroup {
		if len(p.MemberIDs) != 1 {
			e.transport.SendToUser(sess.UserID, EvChatError, ChatErrorEvent{Error: "direct chat needs exactly one target"})
			return
		}
		target := p.MemberIDs[0]
		chat, _, err := e.store.GetOrCreateDirectChat(sess.UserID, target)
		if err != nil {
			e.transport.SendToUser(sess.UserID, EvChatError, ChatErrorEvent{Error: "failed to create chat"})
			return
		}
		enriched := e.store.EnrichChat(chat)
		e.transport.JoinRoom(chat.ID, sess.UserID)
		e.transport.SendToUser(sess.UserID, EvChatCreated, enriched)
		if e.transport.IsOnline(target) {
			e.transport.JoinRoom(chat.ID, target)
			e.transport.SendToUser(target, EvChatNew, enriched)
		}
		return
	}

	chat, err := e.store.CreateGroupChat(sess.UserID, p.Name, p.MemberIDs)
	if err != nil {
		e.transport.SendToUser(sess.UserID, EvChatError, ChatErrorEvent{Error: "failed to create chat"})
		return
	}
	enriched := e.store.EnrichChat(chat)
	e.transport.JoinRoom(chat.ID, sess.UserID)
	for _, uid := range p.MemberIDs {
		e.transport.JoinRoom(chat.ID, uid)
	}
	e.transport.SendToUser(sess.UserID, EvChatCreated, enriched)
	e.transport.BroadcastRoom(chat.ID, EvChatNew, enriched, sess.UserID)
}

func (e *Engine) handleFetchMessages(sess *Session, data json.RawMessage) {
	var p FetchPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	messages, err := e.store.FetchMessages(p.ChatID, sess.UserID, p.Limit, p.Offset)
	if err != nil {
		reason := "failed to fetch messages"
		if errors.Is(err, common.ErrNotChatMember) {
			reason = "not a member of this chat"
		}
		e.transport.SendToUser(sess.UserID, EvMessagesError, MessagesErrorEvent{Error: reason})
		return
	}
	e.transport.SendToUser(sess.UserID, EvMessagesFetched, MessagesFetchedEvent{
		ChatID:   p.ChatID,
		Messages: messages,
	})
}

func (e *Engine) handleSearchMessages(sess *Session, data json.RawMessage) {
	var p SearchPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	results, err := e.store.SearchMessages(sess.UserID, p.Query)
	if err != nil {
		e.transport.SendToUser(sess.UserID, EvSearchError, MessagesErrorEvent{Error: "search failed"})
		return
	}
	e.transport.SendToUser(sess.UserID, EvSearchResults, SearchResultsEvent{Results: results})
}

func (e *Engine) handleSummary(sess *Session, data json.RawMessage) {
	var p SummaryPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	messages, err := e.store.SummaryInput(p.ChatID, sess.UserID)
	if err != nil {
		e.transport.SendToUser(sess.UserID, EvChatSummaryError, SummaryErrorEvent{ChatID: p.ChatID, Error: "failed to gather messages"})
		return
	}
	summary, err := e.moderator.Summarize(context.Background(), messages)
	if err != nil {
		e.transport.SendToUser(sess.UserID, EvChatSummaryError, SummaryErrorEvent{ChatID: p.ChatID, Error: "summary unavailable"})
		return
	}
	e.transport.SendToUser(sess.UserID, EvChatSummaryReply, SummaryEvent{ChatID: p.ChatID, Summary: summary})
}
