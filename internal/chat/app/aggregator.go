package app

import (
	"context"
	"sort"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// ConversationAggregator maintains the per-user conversation summaries: a
// redis projection updated incrementally as events commit, rebuilt from the
// message store when cold. The store stays the source of truth; losing the
// cache only costs one rebuild scan.
type ConversationAggregator struct {
	messages repository.MessageRepository
	users    repository.UserRepository
	cache    repository.SummaryCache
	presence repository.PresenceRepository
	registry *Registry
}

// NewConversationAggregator init the summary aggregator
func NewConversationAggregator(
	messages repository.MessageRepository,
	users repository.UserRepository,
	cache repository.SummaryCache,
	presence repository.PresenceRepository,
	registry *Registry,
) *ConversationAggregator {
	return &ConversationAggregator{
		messages: messages,
		users:    users,
		cache:    cache,
		presence: presence,
		registry: registry,
	}
}

// updateSummary applies fn to one cached summary. A cold cache is left cold;
// a cache failure invalidates the viewer so the next read rebuilds.
func (a *ConversationAggregator) updateSummary(ctx context.Context, viewerID, counterpartID string, fn func(*repository.CachedSummary) bool) error {
	warm, err := a.cache.Warm(ctx, viewerID)
	if err != nil || !warm {
		return err
	}

	cur, err := a.cache.Get(ctx, viewerID, counterpartID)
	if err != nil {
		a.invalidate(ctx, viewerID)
		return err
	}

	s := repository.CachedSummary{CounterpartID: counterpartID}
	if cur != nil {
		s = *cur
	}
	if keep := fn(&s); !keep {
		if err := a.cache.Remove(ctx, viewerID, counterpartID); err != nil {
			a.invalidate(ctx, viewerID)
			return err
		}
		return nil
	}
	if s.UnreadCount < 0 {
		s.UnreadCount = 0
	}

	if err := a.cache.Put(ctx, viewerID, s); err != nil {
		a.invalidate(ctx, viewerID)
		return err
	}
	return nil
}

func (a *ConversationAggregator) invalidate(ctx context.Context, viewerID string) {
	if err := a.cache.Invalidate(ctx, viewerID); err != nil {
		logger.Log.Error("summary cache invalidate failed",
			zap.String("viewerID", viewerID), zap.Error(err))
	}
}

// OnAppend moves the new message into both participants' previews and bumps
// the receiver's unread count.
func (a *ConversationAggregator) OnAppend(ctx context.Context, msg *domain.Message) {
	a.hook(ctx, msg.SenderID, msg.ReceiverID, func(s *repository.CachedSummary) bool {
		s.LastMessage = domain.PreviewOf(msg, msg.SenderID)
		return true
	})
	a.hook(ctx, msg.ReceiverID, msg.SenderID, func(s *repository.CachedSummary) bool {
		s.LastMessage = domain.PreviewOf(msg, msg.ReceiverID)
		s.UnreadCount++
		return true
	})
}

// OnEdit refreshes the preview iff the edited message is the current preview.
func (a *ConversationAggregator) OnEdit(ctx context.Context, msg *domain.Message) {
	for _, viewer := range []string{msg.SenderID, msg.ReceiverID} {
		a.hook(ctx, viewer, msg.CounterpartOf(viewer), func(s *repository.CachedSummary) bool {
			if s.LastMessage == nil || s.LastMessage.ID != msg.ID {
				return true
			}
			s.LastMessage = domain.PreviewOf(msg, viewer)
			return true
		})
	}
}

// OnDelete steps the preview back to the latest surviving message when the
// tombstoned one was the preview, and decrements the receiver's unread count
// when it was still unread. With no surviving message the summary disappears.
func (a *ConversationAggregator) OnDelete(ctx context.Context, msg *domain.Message, wasUnread bool) {
	prev, err := a.messages.LastNonDeleted(ctx, msg.SenderID, msg.ReceiverID)
	if err != nil {
		logger.Log.Error("preview step-back failed", zap.String("messageID", msg.ID), zap.Error(err))
		a.invalidate(ctx, msg.SenderID)
		a.invalidate(ctx, msg.ReceiverID)
		return
	}

	for _, viewer := range []string{msg.SenderID, msg.ReceiverID} {
		viewer := viewer
		a.hook(ctx, viewer, msg.CounterpartOf(viewer), func(s *repository.CachedSummary) bool {
			if wasUnread && viewer == msg.ReceiverID {
				s.UnreadCount--
			}
			if s.LastMessage != nil && s.LastMessage.ID == msg.ID {
				if prev == nil {
					return false
				}
				s.LastMessage = domain.PreviewOf(prev, viewer)
			}
			return true
		})
	}
}

// OnRead decrements the reader's unread count for the conversation.
func (a *ConversationAggregator) OnRead(ctx context.Context, msg *domain.Message) {
	a.hook(ctx, msg.ReceiverID, msg.SenderID, func(s *repository.CachedSummary) bool {
		s.UnreadCount--
		return true
	})
}

// OnMarkAllRead zeroes the viewer's unread count for one conversation.
func (a *ConversationAggregator) OnMarkAllRead(ctx context.Context, viewerID, counterpartID string) {
	a.hook(ctx, viewerID, counterpartID, func(s *repository.CachedSummary) bool {
		s.UnreadCount = 0
		return true
	})
}

func (a *ConversationAggregator) hook(ctx context.Context, viewerID, counterpartID string, fn func(*repository.CachedSummary) bool) {
	if err := a.updateSummary(ctx, viewerID, counterpartID, fn); err != nil {
		logger.Log.Error("summary update failed",
			zap.String("viewerID", viewerID),
			zap.String("counterpartID", counterpartID),
			zap.Error(err))
	}
}

// ListFor returns the viewer's conversation list, newest first, serving from
// the cache and rebuilding on a miss.
func (a *ConversationAggregator) ListFor(ctx context.Context, viewerID string) ([]domain.ConversationSummary, error) {
	cached, warm, err := a.cache.GetAll(ctx, viewerID)
	if err != nil || !warm {
		return a.Rebuild(ctx, viewerID)
	}

	counterpartIDs := make([]string, 0, len(cached))
	for id := range cached {
		counterpartIDs = append(counterpartIDs, id)
	}
	users, err := a.users.GetByIDs(ctx, counterpartIDs)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.ConversationSummary, 0, len(cached))
	for counterpartID, s := range cached {
		if s.LastMessage == nil {
			continue
		}
		u, ok := users[counterpartID]
		if !ok {
			continue
		}
		summaries = append(summaries, domain.ConversationSummary{
			Counterpart: domain.Counterpart{
				ID:          u.ID,
				Username:    u.Username,
				DisplayName: u.DisplayName,
				AvatarURL:   u.AvatarURL,
			},
			LastMessage: s.LastMessage,
			UnreadCount: s.UnreadCount,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastMessage.CreatedAt.After(summaries[j].LastMessage.CreatedAt)
	})

	a.decorate(ctx, summaries)
	return summaries, nil
}

// Rebuild recomputes the projection from the message store and warms the
// cache. This is the recovery path after a crash or cache loss.
func (a *ConversationAggregator) Rebuild(ctx context.Context, viewerID string) ([]domain.ConversationSummary, error) {
	summaries, err := a.messages.ListConversationsFor(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	cached := make([]repository.CachedSummary, 0, len(summaries))
	for _, s := range summaries {
		cached = append(cached, repository.CachedSummary{
			CounterpartID: s.Counterpart.ID,
			LastMessage:   s.LastMessage,
			UnreadCount:   s.UnreadCount,
		})
	}
	if err := a.cache.PutAll(ctx, viewerID, cached); err != nil {
		logger.Log.Error("summary cache warm failed", zap.String("viewerID", viewerID), zap.Error(err))
	}

	a.decorate(ctx, summaries)
	return summaries, nil
}

// decorate fills live presence onto counterpart identities.
func (a *ConversationAggregator) decorate(ctx context.Context, summaries []domain.ConversationSummary) {
	for i := range summaries {
		id := summaries[i].Counterpart.ID
		summaries[i].Counterpart.Online = a.registry.IsOnline(id)
		if lastSeen, err := a.presence.LastSeen(ctx, id); err == nil {
			summaries[i].Counterpart.LastSeenAt = lastSeen
		}
	}
}
