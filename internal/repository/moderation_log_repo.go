package repository

import (
	"gorm.io/gorm"

	"github.com/wavechat/wavechat-backend/internal/domain"
)

// ModerationLogRepository write-once moderation records
type ModerationLogRepository interface {
	Create(log *domain.ModerationLog) error
}

type moderationLogRepository struct {
	db *gorm.DB
}

// NewModerationLogRepository creates a new ModerationLogRepository
func NewModerationLogRepository(db *gorm.DB) ModerationLogRepository {
	return &moderationLogRepository{db: db}
}

func (r *moderationLogRepository) Create(log *domain.ModerationLog) error {
	return r.db.Create(log).Error
}
