package domain

import "time"

// User is an account provisioned by the external identity provider.
// Only the presence fields (is_online, last_seen_at) are written here;
// everything else is owned by the provider.
type User struct {
	ID         uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Nickname   string     `gorm:"column:nickname;size:100" json:"nickname"`
	AvatarURL  string     `gorm:"column:avatar_url;size:500" json:"avatar_url,omitempty"`
	IsOnline   bool       `gorm:"column:is_online;default:false" json:"is_online"`
	LastSeenAt *time.Time `gorm:"column:last_seen_at" json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (User) TableName() string { return "users" }
