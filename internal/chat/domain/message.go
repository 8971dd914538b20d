package domain

import (
	"strings"
	"time"
)

// Message is one durable row of the conversation log. The log is the source
// of truth; the live channel only accelerates delivery.
type Message struct {
	ID         string     `gorm:"primaryKey;type:uuid" json:"id"`
	SenderID   string     `gorm:"type:uuid;not null;index:idx_messages_pair,priority:1" json:"sender_id"`
	ReceiverID string     `gorm:"type:uuid;not null;index:idx_messages_pair,priority:2" json:"receiver_id"`
	Content    string     `gorm:"not null" json:"content"`
	ReplyToID  *string    `gorm:"type:uuid" json:"reply_to_id,omitempty"`
	CreatedAt  time.Time  `gorm:"index;not null" json:"created_at"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	Deleted    bool       `gorm:"not null;default:false" json:"deleted"`
}

// TableName maps the model onto the messages table
func (Message) TableName() string { return "messages" }

// CounterpartOf returns the other party of the message relative to viewer.
func (m *Message) CounterpartOf(viewer string) string {
	if m.SenderID == viewer {
		return m.ReceiverID
	}
	return m.SenderID
}

// PairKey returns the conversation key: the unordered user pair in canonical
// order. It is identical no matter who sent a given message.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}
