package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wavechat/wavechat-backend/internal/domain"
)

// ChatRepository chat and membership data access
type ChatRepository interface {
	Create(chat *domain.Chat) error
	FindByID(id uint64) (*domain.Chat, error)
	FindDirectByKey(key string) (*domain.Chat, error)
	ListByUser(userID uint64) ([]*domain.Chat, error)
	ListChatIDsByUser(userID uint64) ([]uint64, error)
	AddMember(member *domain.ChatMember) error
	ListMembers(chatID uint64) ([]*domain.ChatMember, error)
	IsMember(chatID, userID uint64) (bool, error)
	TouchActivity(chatID uint64, at time.Time) error
	UpdateLastRead(chatID, userID uint64, at time.Time) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new ChatRepository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) Create(chat *domain.Chat) error {
	return r.db.Create(chat).Error
}

func (r *chatRepository) FindByID(id uint64) (*domain.Chat, error) {
	var chat domain.Chat
	err := r.db.Preload("Members.User").Where("id = ?", id).First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepository) FindDirectByKey(key string) (*domain.Chat, error) {
	var chat domain.Chat
	err := r.db.Preload("Members.User").
		Where("direct_key = ?", key).First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepository) ListByUser(userID uint64) ([]*domain.Chat, error) {
	var chats []*domain.Chat
	err := r.db.Preload("Members.User").
		Joins("JOIN chat_members cm ON cm.chat_id = chats.id").
		Where("cm.user_id = ?", userID).
		Order("chats.last_activity_at DESC").
		Find(&chats).Error
	return chats, err
}

func (r *chatRepository) ListChatIDsByUser(userID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.Model(&domain.ChatMember{}).
		Where("user_id = ?", userID).
		Pluck("chat_id", &ids).Error
	return ids, err
}

// AddMember is idempotent: re-adding an existing (chat, user) pair is a no-op
func (r *chatRepository) AddMember(member *domain.ChatMember) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(member).Error
}

func (r *chatRepository) ListMembers(chatID uint64) ([]*domain.ChatMember, error) {
	var members []*domain.ChatMember
	err := r.db.Preload("User").Where("chat_id = ?", chatID).Find(&members).Error
	return members, err
}

func (r *chatRepository) IsMember(chatID, userID uint64) (bool, error) {
	var count int64
	err := r.db.Model(&domain.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *chatRepository) TouchActivity(chatID uint64, at time.Time) error {
	return r.db.Model(&domain.Chat{}).Where("id = ?", chatID).
		Update("last_activity_at", at).Error
}

func (r *chatRepository) UpdateLastRead(chatID, userID uint64, at time.Time) error {
	return r.db.Model(&domain.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Update("last_read_at", at).Error
}
