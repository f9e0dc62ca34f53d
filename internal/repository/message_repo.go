package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wavechat/wavechat-backend/internal/domain"
)

// SearchLimit caps search results
const SearchLimit = 50

// MessageRepository message and receipt data access
type MessageRepository interface {
	Create(msg *domain.Message) error
	FindByID(id uint64) (*domain.Message, error)
	// ListByChatPaged queries reverse-chronologically (newest page first)
	// and returns the page in chronological order.
	ListByChatPaged(chatID uint64, limit, offset int) ([]*domain.Message, error)
	SearchInChats(chatIDs []uint64, query string, limit int) ([]*domain.Message, error)
	AddReceipt(receipt *domain.MessageReceipt) error
	ListReceipts(messageID uint64) ([]*domain.MessageReceipt, error)
	ListUnread(chatID, userID uint64, fallbackLimit int) ([]*domain.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(msg *domain.Message) error {
	return r.db.Create(msg).Error
}

func (r *messageRepository) FindByID(id uint64) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) ListByChatPaged(chatID uint64, limit, offset int) ([]*domain.Message, error) {
	var messages []*domain.Message
	err := r.db.Where("chat_id = ?", chatID).
		Order("id DESC").Offset(offset).Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	// Reverse to oldest-first for the client
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *messageRepository) SearchInChats(chatIDs []uint64, query string, limit int) ([]*domain.Message, error) {
	var messages []*domain.Message
	if len(chatIDs) == 0 {
		return messages, nil
	}
	if limit <= 0 || limit > SearchLimit {
		limit = SearchLimit
	}
	err := r.db.Where("chat_id IN ?", chatIDs).
		Where("content LIKE ?", "%"+query+"%").
		Order("id DESC").Limit(limit).
		Find(&messages).Error
	return messages, err
}

// AddReceipt is idempotent: duplicate (message, user, kind) inserts are no-ops,
// so the delivered/read sets only grow.
func (r *messageRepository) AddReceipt(receipt *domain.MessageReceipt) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(receipt).Error
}

func (r *messageRepository) ListReceipts(messageID uint64) ([]*domain.MessageReceipt, error) {
	var receipts []*domain.MessageReceipt
	err := r.db.Where("message_id = ?", messageID).Find(&receipts).Error
	return receipts, err
}

// ListUnread returns messages in the chat without a read receipt from the user,
// falling back to the most recent fallbackLimit messages when everything is read.
func (r *messageRepository) ListUnread(chatID, userID uint64, fallbackLimit int) ([]*domain.Message, error) {
	var messages []*domain.Message
	err := r.db.Where("chat_id = ? AND sender_id != ?", chatID, userID).
		Where("id NOT IN (?)", r.db.Model(&domain.MessageReceipt{}).
			Select("message_id").
			Where("user_id = ? AND kind = ?", userID, domain.ReceiptRead)).
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		return messages, nil
	}
	return r.ListByChatPaged(chatID, fallbackLimit, 0)
}
