package domain

import (
	"fmt"
	"time"
)

// Chat is a direct or group conversation
type Chat struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string `gorm:"column:name;size:200" json:"name,omitempty"`
	IsGroup   bool   `gorm:"column:is_group;default:false" json:"is_group"`
	CreatorID uint64 `gorm:"column:creator_id;index" json:"creator_id"`
	// DirectKey is "minUserID:maxUserID" for direct chats, NULL for groups.
	// The unique index makes duplicate 1:1 creation a storage-level conflict
	// instead of an application race.
	DirectKey      *string   `gorm:"column:direct_key;size:64;uniqueIndex" json:"-"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	LastActivityAt time.Time `gorm:"column:last_activity_at;autoUpdateTime:false" json:"last_activity_at"`

	Members []ChatMember `gorm:"foreignKey:ChatID" json:"members,omitempty"`
}

func (Chat) TableName() string { return "chats" }

// DirectKeyFor returns the canonical key for a 1:1 chat between two users
func DirectKeyFor(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// ChatMember links a user to a chat
type ChatMember struct {
	ID         uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ChatID     uint64     `gorm:"column:chat_id;uniqueIndex:uq_chat_member" json:"chat_id"`
	UserID     uint64     `gorm:"column:user_id;uniqueIndex:uq_chat_member;index" json:"user_id"`
	JoinedAt   time.Time  `gorm:"column:joined_at;autoCreateTime" json:"joined_at"`
	LastReadAt *time.Time `gorm:"column:last_read_at" json:"last_read_at,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (ChatMember) TableName() string { return "chat_members" }
