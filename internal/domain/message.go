package domain

import "time"

// Receipt kinds
const (
	ReceiptDelivered = "delivered"
	ReceiptRead      = "read"
)

// Message is one chat message. Content is immutable after insert; only
// receipts accumulate afterwards.
type Message struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ChatID    uint64    `gorm:"column:chat_id;index" json:"chat_id"`
	SenderID  uint64    `gorm:"column:sender_id;index" json:"sender_id"`
	Content   string    `gorm:"column:content;type:text" json:"content"`
	Flagged   bool      `gorm:"column:flagged;default:false" json:"flagged"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`

	DeliveredTo []uint64 `gorm:"-" json:"delivered_to,omitempty"`
	ReadBy      []uint64 `gorm:"-" json:"read_by,omitempty"`
}

func (Message) TableName() string { return "messages" }

// MessageReceipt records that a user received or read a message.
// The unique key makes inserts idempotent, so the delivered-to and
// read-by sets only ever grow and never hold duplicates.
type MessageReceipt struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	MessageID uint64    `gorm:"column:message_id;uniqueIndex:uq_receipt" json:"message_id"`
	UserID    uint64    `gorm:"column:user_id;uniqueIndex:uq_receipt" json:"user_id"`
	Kind      string    `gorm:"column:kind;size:16;uniqueIndex:uq_receipt" json:"kind"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (MessageReceipt) TableName() string { return "message_receipts" }

// ModerationLog is the write-once record of a message's moderation verdict
type ModerationLog struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MessageID uint64 `gorm:"column:message_id;index" json:"message_id"`
	Flagged   bool   `gorm:"column:flagged" json:"flagged"`
	// Scores is the raw category-score JSON returned by the scorer.
	Scores    string    `gorm:"column:scores;type:text" json:"scores"`
	Degraded  bool      `gorm:"column:degraded;default:false" json:"degraded"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ModerationLog) TableName() string { return "moderation_logs" }
