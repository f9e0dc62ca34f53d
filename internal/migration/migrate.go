package migration

import (
	"gorm.io/gorm"

	"github.com/wavechat/wavechat-backend/internal/domain"
)

// Run executes AutoMigrate for the chat schema.
// Tables are created when missing and skipped otherwise.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Chat{},
		&domain.ChatMember{},
		&domain.Message{},
		&domain.MessageReceipt{},
		&domain.ModerationLog{},
	)
}
