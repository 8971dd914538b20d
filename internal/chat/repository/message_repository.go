package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageRepository definition of the durable message log. It is the single
// source of truth; everything the live channel delivers can be re-derived
// from here.
type MessageRepository interface {
	AutoMigrate() error
	// Append validates and persists a new message, assigning id and created_at.
	Append(ctx context.Context, senderID, receiverID, content string, replyToID *string) (*domain.Message, error)
	// Edit replaces the content; only the sender may edit, tombstones are gone.
	Edit(ctx context.Context, messageID, requestorID, content string) (*domain.Message, error)
	// SoftDelete tombstones a message; idempotent, sender only.
	SoftDelete(ctx context.Context, messageID, requestorID string) error
	// MarkRead sets read_at once; receiver only, repeat calls are no-ops.
	MarkRead(ctx context.Context, messageID, requestorID string) (*domain.Message, error)
	// MarkAllRead reads every unread message from counterpart to viewer and
	// returns the number of rows changed.
	MarkAllRead(ctx context.Context, counterpartID, viewerID string) (int64, error)
	// ListBetween returns the conversation ascending by (created_at, id).
	ListBetween(ctx context.Context, userA, userB string, includeDeleted bool) ([]domain.Message, error)
	// ListConversationsFor recomputes every summary for userID from scratch,
	// newest conversation first. Counterpart online state is not filled here.
	ListConversationsFor(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	// LastNonDeleted returns the current preview message of a pair, or nil.
	LastNonDeleted(ctx context.Context, userA, userB string) (*domain.Message, error)
	// UnreadCount counts non-deleted unread messages from counterpart to viewer.
	UnreadCount(ctx context.Context, viewerID, counterpartID string) (int64, error)
	GetByID(ctx context.Context, messageID string) (*domain.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository create a MessageRepository backed by PostgreSQL
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.Message{})
}

// storeErr maps driver failures onto the service error taxonomy.
func storeErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("message not found")
	}
	return apperr.StoreUnavailable(err)
}

func (r *messageRepository) Append(ctx context.Context, senderID, receiverID, content string, replyToID *string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("content is empty")
	}
	if senderID == receiverID {
		return nil, apperr.Validation("cannot message yourself")
	}

	if replyToID != nil {
		parent, err := r.GetByID(ctx, *replyToID)
		if err != nil {
			return nil, err
		}
		// Replies stay inside the conversation they belong to.
		if domain.PairKey(parent.SenderID, parent.ReceiverID) != domain.PairKey(senderID, receiverID) {
			return nil, apperr.Validation("reply target belongs to another conversation")
		}
	}

	msg := &domain.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		ReplyToID:  replyToID,
		CreatedAt:  time.Now().UTC(),
	}

	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, storeErr(err)
	}
	return msg, nil
}

func (r *messageRepository) Edit(ctx context.Context, messageID, requestorID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("content is empty")
	}

	msg, err := r.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Deleted {
		return nil, apperr.NotFound("message not found")
	}
	if msg.SenderID != requestorID {
		return nil, apperr.Forbidden("only the sender may edit a message")
	}

	now := time.Now().UTC()
	msg.Content = content
	msg.EditedAt = &now

	if err := r.db.WithContext(ctx).Model(&domain.Message{ID: msg.ID}).
		Updates(map[string]interface{}{"content": msg.Content, "edited_at": msg.EditedAt}).Error; err != nil {
		return nil, storeErr(err)
	}
	return msg, nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, messageID, requestorID string) error {
	msg, err := r.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requestorID {
		return apperr.Forbidden("only the sender may delete a message")
	}
	if msg.Deleted {
		// deleting twice is not an error
		return nil
	}

	if err := r.db.WithContext(ctx).Model(&domain.Message{ID: msg.ID}).
		Update("deleted", true).Error; err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *messageRepository) MarkRead(ctx context.Context, messageID, requestorID string) (*domain.Message, error) {
	msg, err := r.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ReceiverID != requestorID {
		return nil, apperr.Forbidden("only the receiver may mark a message read")
	}
	if msg.ReadAt != nil {
		// idempotent: keep the original timestamp
		return msg, nil
	}

	now := time.Now().UTC()
	if err := r.db.WithContext(ctx).Model(&domain.Message{ID: msg.ID}).
		Update("read_at", &now).Error; err != nil {
		return nil, storeErr(err)
	}
	msg.ReadAt = &now
	return msg, nil
}

func (r *messageRepository) MarkAllRead(ctx context.Context, counterpartID, viewerID string) (int64, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND read_at IS NULL AND deleted = ?", counterpartID, viewerID, false).
		Update("read_at", &now)
	if res.Error != nil {
		return 0, storeErr(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *messageRepository) ListBetween(ctx context.Context, userA, userB string, includeDeleted bool) ([]domain.Message, error) {
	q := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userA, userB, userB, userA)
	if !includeDeleted {
		q = q.Where("deleted = ?", false)
	}

	var messages []domain.Message
	if err := q.Order("created_at asc, id asc").Find(&messages).Error; err != nil {
		return nil, storeErr(err)
	}
	return messages, nil
}

// conversationQuery resolves, per counterpart, the latest non-deleted message
// and the viewer's unread count in one round trip.
const conversationQuery = `
WITH partner_latest AS (
	SELECT
		CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS partner_id,
		MAX(created_at) AS last_msg_at
	FROM messages
	WHERE (sender_id = ? OR receiver_id = ?) AND deleted = false
	GROUP BY 1
)
SELECT DISTINCT ON (pl.partner_id)
	u.id, u.username, COALESCE(u.display_name, ''), COALESCE(u.avatar_url, ''),
	m.id, m.content, m.created_at, m.sender_id,
	(SELECT count(*) FROM messages
		WHERE sender_id = pl.partner_id AND receiver_id = ? AND read_at IS NULL AND deleted = false) AS unread_count
FROM partner_latest pl
JOIN users u ON u.id = pl.partner_id
JOIN messages m ON (
	(m.sender_id = pl.partner_id AND m.receiver_id = ?) OR
	(m.sender_id = ? AND m.receiver_id = pl.partner_id)
) AND m.created_at = pl.last_msg_at AND m.deleted = false
ORDER BY pl.partner_id, m.created_at DESC, m.id DESC
`

func (r *messageRepository) ListConversationsFor(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	rows, err := r.db.WithContext(ctx).
		Raw(conversationQuery, userID, userID, userID, userID, userID, userID).Rows()
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var summaries []domain.ConversationSummary
	for rows.Next() {
		var (
			cp       domain.Counterpart
			last     domain.LastMessage
			senderID string
			unread   int64
		)
		if err := rows.Scan(
			&cp.ID, &cp.Username, &cp.DisplayName, &cp.AvatarURL,
			&last.ID, &last.Content, &last.CreatedAt, &senderID,
			&unread,
		); err != nil {
			return nil, storeErr(err)
		}

		last.Sender = domain.SenderThem
		if senderID == userID {
			last.Sender = domain.SenderYou
		}

		summaries = append(summaries, domain.ConversationSummary{
			Counterpart: cp,
			LastMessage: &last,
			UnreadCount: unread,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastMessage.CreatedAt.After(summaries[j].LastMessage.CreatedAt)
	})
	return summaries, nil
}

func (r *messageRepository) LastNonDeleted(ctx context.Context, userA, userB string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).
		Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)) AND deleted = ?",
			userA, userB, userB, userA, false).
		Order("created_at desc, id desc").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// every message of the pair is deleted; the summary disappears
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return &msg, nil
}

func (r *messageRepository) UnreadCount(ctx context.Context, viewerID, counterpartID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND read_at IS NULL AND deleted = ?", counterpartID, viewerID, false).
		Count(&count).Error
	if err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

func (r *messageRepository) GetByID(ctx context.Context, messageID string) (*domain.Message, error) {
	var msg domain.Message
	if err := r.db.WithContext(ctx).First(&msg, "id = ?", messageID).Error; err != nil {
		return nil, storeErr(err)
	}
	return &msg, nil
}
