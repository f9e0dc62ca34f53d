package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/wavechat/wavechat-backend/internal/common"
	"github.com/wavechat/wavechat-backend/internal/domain"
	"github.com/wavechat/wavechat-backend/internal/repository"
	pkges "github.com/wavechat/wavechat-backend/pkg/elasticsearch"
	pkglogger "github.com/wavechat/wavechat-backend/pkg/logger"
)

// DefaultFetchLimit is the page size when the client does not ask for one
const DefaultFetchLimit = 50

// SummaryFallbackLimit bounds the "most recent" fallback for summaries
const SummaryFallbackLimit = 20

// TaskEnqueuer hands best-effort work to the background queue.
// A nil enqueuer (or an enqueue failure) falls back to inline execution.
type TaskEnqueuer interface {
	EnqueueModerationLog(ctx context.Context, log *domain.ModerationLog) error
	EnqueueIndexMessage(ctx context.Context, msg *domain.Message) error
}

// ChatService orchestrates chats, messages and receipts for the session
// engine and the REST surface.
type ChatService struct {
	users    repository.UserRepository
	chats    repository.ChatRepository
	messages repository.MessageRepository
	modLogs  repository.ModerationLogRepository
	es       *pkges.Client // optional
	enqueuer TaskEnqueuer  // optional
}

// NewChatService creates a ChatService
func NewChatService(
	users repository.UserRepository,
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	modLogs repository.ModerationLogRepository,
) *ChatService {
	return &ChatService{
		users:    users,
		chats:    chats,
		messages: messages,
		modLogs:  modLogs,
	}
}

// SetSearchClient enables Elasticsearch-backed search
func (s *ChatService) SetSearchClient(es *pkges.Client) { s.es = es }

// SetEnqueuer enables queue-backed best-effort writes
func (s *ChatService) SetEnqueuer(e TaskEnqueuer) { s.enqueuer = e }

// ListUsers returns the user directory
func (s *ChatService) ListUsers() ([]*domain.User, error) {
	return s.users.List()
}

// GetUser returns one user
func (s *ChatService) GetUser(id uint64) (*domain.User, error) {
	user, err := s.users.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrUserNotFound
	}
	return user, err
}

// ListChatsByUser returns a user's chats with member lists, most recent first
func (s *ChatService) ListChatsByUser(userID uint64) ([]*domain.Chat, error) {
	return s.chats.ListByUser(userID)
}

// SetOnline flips the user's presence flag and last-seen timestamp
func (s *ChatService) SetOnline(userID uint64, online bool) error {
	return s.users.SetOnline(userID, online, time.Now())
}

// ChatIDsForUser returns the ids of every chat the user belongs to
func (s *ChatService) ChatIDsForUser(userID uint64) ([]uint64, error) {
	return s.chats.ListChatIDsByUser(userID)
}

// GetOrCreateDirectChat finds the unique 1:1 chat between the two users or
// creates it. The canonical direct_key unique index turns the concurrent
// double-create race into a storage conflict that resolves to reuse.
func (s *ChatService) GetOrCreateDirectChat(creatorID, targetID uint64) (*domain.Chat, bool, error) {
	if creatorID == targetID {
		return nil, false, common.ErrInvalidInput
	}
	key := domain.DirectKeyFor(creatorID, targetID)

	existing, err := s.chats.FindDirectByKey(key)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	chat := &domain.Chat{
		IsGroup:        false,
		CreatorID:      creatorID,
		DirectKey:      &key,
		LastActivityAt: time.Now(),
	}
	if err := s.chats.Create(chat); err != nil {
		// Lost the race: another request created the chat first
		if again, lookupErr := s.chats.FindDirectByKey(key); lookupErr == nil {
			return again, true, nil
		}
		return nil, false, err
	}

	for _, uid := range []uint64{creatorID, targetID} {
		if err := s.chats.AddMember(&domain.ChatMember{ChatID: chat.ID, UserID: uid}); err != nil {
			return nil, false, err
		}
	}

	created, err := s.chats.FindByID(chat.ID)
	if err != nil {
		return chat, false, nil
	}
	return created, false, nil
}

// CreateGroupChat creates a group chat with the creator plus targets.
// Partial membership failures are not rolled back; the error is reported
// and whatever was written stays (best-effort consistency).
func (s *ChatService) CreateGroupChat(creatorID uint64, name string, memberIDs []uint64) (*domain.Chat, error) {
	chat := &domain.Chat{
		Name:           name,
		IsGroup:        true,
		CreatorID:      creatorID,
		LastActivityAt: time.Now(),
	}
	if err := s.chats.Create(chat); err != nil {
		return nil, err
	}

	if err := s.chats.AddMember(&domain.ChatMember{ChatID: chat.ID, UserID: creatorID}); err != nil {
		return nil, err
	}
	for _, uid := range memberIDs {
		if uid == creatorID {
			continue
		}
		if err := s.chats.AddMember(&domain.ChatMember{ChatID: chat.ID, UserID: uid}); err != nil {
			return nil, err
		}
	}

	created, err := s.chats.FindByID(chat.ID)
	if err != nil {
		return chat, nil
	}
	return created, nil
}

// MemberIDs returns the user ids of a chat's members
func (s *ChatService) MemberIDs(chatID uint64) ([]uint64, error) {
	members, err := s.chats.ListMembers(chatID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

// SaveMessage persists an allowed message and bumps the chat's last activity
func (s *ChatService) SaveMessage(chatID, senderID uint64, content string, flagged bool) (*domain.Message, error) {
	msg := &domain.Message{
		ChatID:   chatID,
		SenderID: senderID,
		Content:  content,
		Flagged:  flagged,
	}
	if err := s.messages.Create(msg); err != nil {
		return nil, err
	}
	if err := s.chats.TouchActivity(chatID, msg.CreatedAt); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Uint64("chat_id", chatID).Msg("touch activity failed")
	}
	s.indexMessage(msg)
	return msg, nil
}

// RecordModeration writes the moderation log for a persisted message.
// Best-effort: a logging failure must never block delivery, so errors are
// logged and swallowed. Goes through the queue when one is configured.
func (s *ChatService) RecordModeration(msg *domain.Message, result ModerationResult) {
	scores, err := json.Marshal(result.Scores)
	if err != nil {
		scores = []byte("{}")
	}
	log := &domain.ModerationLog{
		MessageID: msg.ID,
		Flagged:   result.Verdict == VerdictFlag,
		Scores:    string(scores),
		Degraded:  result.Degraded,
	}

	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueModerationLog(context.Background(), log); err == nil {
			return
		}
	}
	if err := s.modLogs.Create(log); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Uint64("message_id", msg.ID).Msg("moderation log write failed")
	}
}

func (s *ChatService) indexMessage(msg *domain.Message) {
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueIndexMessage(context.Background(), msg); err == nil {
			return
		}
	}
	if s.es == nil {
		return
	}
	doc := map[string]interface{}{
		"chat_id":    msg.ChatID,
		"sender_id":  msg.SenderID,
		"content":    msg.Content,
		"created_at": msg.CreatedAt,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.es.IndexDocument(ctx, pkges.MessageIndex, strconv.FormatUint(msg.ID, 10), doc); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Uint64("message_id", msg.ID).Msg("message index failed")
	}
}

// MarkDelivered adds the user to the message's delivered-to set (idempotent)
func (s *ChatService) MarkDelivered(messageID, userID uint64) error {
	return s.messages.AddReceipt(&domain.MessageReceipt{
		MessageID: messageID,
		UserID:    userID,
		Kind:      domain.ReceiptDelivered,
	})
}

// MarkRead adds the user to the message's read-by set and bumps the
// membership's last-read timestamp
func (s *ChatService) MarkRead(chatID, messageID, userID uint64) error {
	if err := s.messages.AddReceipt(&domain.MessageReceipt{
		MessageID: messageID,
		UserID:    userID,
		Kind:      domain.ReceiptRead,
	}); err != nil {
		return err
	}
	return s.chats.UpdateLastRead(chatID, userID, time.Now())
}

// MarkSeen bulk-marks messages read with one last-read bump. Best-effort:
// a failing id does not stop the rest; the ids that stuck are returned.
func (s *ChatService) MarkSeen(chatID, userID uint64, messageIDs []uint64) []uint64 {
	seen := make([]uint64, 0, len(messageIDs))
	for _, id := range messageIDs {
		if err := s.messages.AddReceipt(&domain.MessageReceipt{
			MessageID: id,
			UserID:    userID,
			Kind:      domain.ReceiptRead,
		}); err != nil {
			pkglogger.GetLogger().Warn().Err(err).Uint64("message_id", id).Msg("seen receipt failed")
			continue
		}
		seen = append(seen, id)
	}
	if len(seen) > 0 {
		if err := s.chats.UpdateLastRead(chatID, userID, time.Now()); err != nil {
			pkglogger.GetLogger().Warn().Err(err).Uint64("chat_id", chatID).Msg("last read update failed")
		}
	}
	return seen
}

// FetchMessages returns one page of the chat's history for a member, oldest
// first, with receipt sets attached
func (s *ChatService) FetchMessages(chatID, userID uint64, limit, offset int) ([]*domain.Message, error) {
	ok, err := s.chats.IsMember(chatID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrNotChatMember
	}
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	messages, err := s.messages.ListByChatPaged(chatID, limit, offset)
	if err != nil {
		return nil, err
	}
	for _, msg := range messages {
		receipts, err := s.messages.ListReceipts(msg.ID)
		if err != nil {
			continue
		}
		for _, rc := range receipts {
			switch rc.Kind {
			case domain.ReceiptDelivered:
				msg.DeliveredTo = append(msg.DeliveredTo, rc.UserID)
			case domain.ReceiptRead:
				msg.ReadBy = append(msg.ReadBy, rc.UserID)
			}
		}
	}
	return messages, nil
}

// SearchMessages matches query against message content across the user's
// chats, newest first, capped at the search limit. Uses Elasticsearch when
// configured and falls back to a SQL substring match.
func (s *ChatService) SearchMessages(userID uint64, query string) ([]*domain.Message, error) {
	chatIDs, err := s.chats.ListChatIDsByUser(userID)
	if err != nil {
		return nil, err
	}
	if len(chatIDs) == 0 {
		return nil, nil
	}

	if s.es != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hits, err := s.es.SearchMessages(ctx, query, chatIDs, repository.SearchLimit)
		if err == nil {
			return s.hydrateHits(hits)
		}
		pkglogger.GetLogger().Warn().Err(err).Msg("es search failed, falling back to sql")
	}

	return s.messages.SearchInChats(chatIDs, query, repository.SearchLimit)
}

func (s *ChatService) hydrateHits(hits []pkges.SearchHit) ([]*domain.Message, error) {
	messages := make([]*domain.Message, 0, len(hits))
	for _, hit := range hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		msg, err := s.messages.FindByID(id)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// SummaryInput gathers the requester's unread messages in the chat, falling
// back to the most recent ones when everything is read
func (s *ChatService) SummaryInput(chatID, userID uint64) ([]*domain.Message, error) {
	ok, err := s.chats.IsMember(chatID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrNotChatMember
	}
	return s.messages.ListUnread(chatID, userID, SummaryFallbackLimit)
}

// PersistModerationLog is the inline form used by the queue worker
func (s *ChatService) PersistModerationLog(log *domain.ModerationLog) error {
	return s.modLogs.Create(log)
}

// IndexMessageNow indexes a message document immediately (queue worker path)
func (s *ChatService) IndexMessageNow(ctx context.Context, msg *domain.Message) error {
	if s.es == nil {
		return nil
	}
	doc := map[string]interface{}{
		"chat_id":    msg.ChatID,
		"sender_id":  msg.SenderID,
		"content":    msg.Content,
		"created_at": msg.CreatedAt,
	}
	return s.es.IndexDocument(ctx, pkges.MessageIndex, strconv.FormatUint(msg.ID, 10), doc)
}

// ChatResponse is a chat enriched with its member users for API payloads
type ChatResponse struct {
	*domain.Chat
	MemberUsers []*domain.User `json:"member_users"`
}

// EnrichChat attaches member user records to a chat payload
func (s *ChatService) EnrichChat(chat *domain.Chat) *ChatResponse {
	resp := &ChatResponse{Chat: chat}
	for _, m := range chat.Members {
		if m.User != nil {
			resp.MemberUsers = append(resp.MemberUsers, m.User)
		}
	}
	if len(resp.MemberUsers) == 0 {
		ids := make([]uint64, 0, len(chat.Members))
		for _, m := range chat.Members {
			ids = append(ids, m.UserID)
		}
		if users, err := s.users.FindByIDs(ids); err == nil {
			resp.MemberUsers = users
		}
	}
	return resp
}
