package domain

import "time"

// Inbound live-channel event names.
const (
	// EventSendMessage websocket event send_message
	EventSendMessage = "send_message"
	// EventEditMessage websocket event edit_message
	EventEditMessage = "edit_message"
	// EventDeleteMessage websocket event delete_message
	EventDeleteMessage = "delete_message"
	// EventMessageRead websocket event message_read (inbound: mark as read)
	EventMessageRead = "message_read"
	// EventTyping websocket event typing
	EventTyping = "typing"
	// EventStopTyping websocket event stop_typing
	EventStopTyping = "stop_typing"
)

// Outbound live-channel event names.
const (
	// EventMessageReceived a new message was committed
	EventMessageReceived = "message_received"
	// EventMessageUpdated an existing message changed (edit)
	EventMessageUpdated = "message_updated"
	// EventMessageDeleted a message was tombstoned
	EventMessageDeleted = "message_deleted"
	// EventMessagesRead batch read receipt, carries the count
	EventMessagesRead = "messages_read"
	// EventUserTyping counterpart started typing
	EventUserTyping = "user_typing"
	// EventUserStoppedTyping counterpart stopped typing
	EventUserStoppedTyping = "user_stopped_typing"
	// EventRejected an inbound event failed; sent to the originator only
	EventRejected = "rejected"
)

// WSRequest is the inbound live-channel frame.
type WSRequest struct {
	Event         string  `json:"event"`
	ReceiverID    string  `json:"receiver_id,omitempty"`
	CounterpartID string  `json:"counterpart_id,omitempty"`
	MessageID     string  `json:"message_id,omitempty"`
	Content       string  `json:"content,omitempty"`
	ReplyToID     *string `json:"reply_to_id,omitempty"`
}

// WSEvent is the outbound live-channel frame. Exactly one shape per event
// name; unused fields are omitted.
type WSEvent struct {
	Event string `json:"event"`

	Message   *Message `json:"message,omitempty"`
	MessageID string   `json:"message_id,omitempty"`

	// ConversationWith names the counterpart from the recipient's point of
	// view, so the client can patch a single summary without a full refetch.
	ConversationWith string `json:"conversation_with,omitempty"`

	// UnreadDelta is the signed adjustment the recipient applies to its
	// cached unread counter for that conversation.
	UnreadDelta int64 `json:"unread_delta,omitempty"`

	ReaderID string     `json:"reader_id,omitempty"`
	UserID   string     `json:"user_id,omitempty"`
	ReadAt   *time.Time `json:"read_at,omitempty"`
	Count    int64      `json:"count,omitempty"`

	// Rejected carries the inbound event name that failed; Error the reason.
	Rejected string `json:"rejected,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DisconnectReason classifies why a live connection ended; it decides whether
// the client attempts reconnection.
type DisconnectReason string

const (
	// DisconnectClient the user closed the connection on purpose
	DisconnectClient DisconnectReason = "client"
	// DisconnectTransport the transport failed underneath the session
	DisconnectTransport DisconnectReason = "transport"
)

// ShouldReconnect reports whether the client retries after this disconnect.
func (r DisconnectReason) ShouldReconnect() bool {
	return r == DisconnectTransport
}
