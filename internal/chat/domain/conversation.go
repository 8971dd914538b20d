package domain

import "time"

// Sender tags on a conversation preview, resolved relative to the viewer.
const (
	// SenderYou the viewer sent the last message
	SenderYou = "you"
	// SenderThem the counterpart sent the last message
	SenderThem = "them"
)

// Counterpart is the other user's public identity on a conversation summary.
type Counterpart struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	AvatarURL   string     `json:"avatar_url"`
	Online      bool       `json:"online"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

// LastMessage is the preview of the most recent non-deleted message.
type LastMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Sender    string    `json:"sender"`
}

// ConversationSummary is the derived per-viewer projection of one
// conversation. It exists implicitly as soon as one message exists and is
// never stored durably; the aggregator recomputes or incrementally maintains
// it.
type ConversationSummary struct {
	Counterpart Counterpart  `json:"counterpart"`
	LastMessage *LastMessage `json:"last_message,omitempty"`
	UnreadCount int64        `json:"unread_count"`
}

// PreviewOf builds the LastMessage preview of m as seen by viewer.
func PreviewOf(m *Message, viewer string) *LastMessage {
	if m == nil {
		return nil
	}
	sender := SenderThem
	if m.SenderID == viewer {
		sender = SenderYou
	}
	return &LastMessage{
		ID:        m.ID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Sender:    sender,
	}
}
