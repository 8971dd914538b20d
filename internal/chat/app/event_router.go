package app

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/pkg/logger"

	"go.uber.org/zap"
)

const routerStripes = 64

// EventRouter applies inbound conversation operations: validate, commit to
// the store, update the aggregator and fan out — in that order, under a
// per-conversation lock, so every recipient observes commit order. Both the
// websocket loop and the REST handlers call into it.
type EventRouter struct {
	messages   repository.MessageRepository
	aggregator *ConversationAggregator
	registry   *Registry
	publisher  repository.StreamPublisher

	writeTimeout   time.Duration
	typingThrottle time.Duration

	// stripes serialize conversations; the stripe is picked by pair key, so
	// unrelated conversations never contend.
	stripes [routerStripes]sync.Mutex

	typingMu   sync.Mutex
	lastTyping map[string]time.Time
}

// NewEventRouter init the event router
func NewEventRouter(
	messages repository.MessageRepository,
	aggregator *ConversationAggregator,
	registry *Registry,
	publisher repository.StreamPublisher,
	writeTimeout, typingThrottle time.Duration,
) *EventRouter {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if typingThrottle <= 0 {
		typingThrottle = 3 * time.Second
	}
	return &EventRouter{
		messages:       messages,
		aggregator:     aggregator,
		registry:       registry,
		publisher:      publisher,
		writeTimeout:   writeTimeout,
		typingThrottle: typingThrottle,
		lastTyping:     make(map[string]time.Time),
	}
}

func (r *EventRouter) stripeFor(pairKey string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(pairKey))
	return &r.stripes[h.Sum32()%routerStripes]
}

// Send commits a new message and fans it out. A store failure means
// not-applied: no summary update, no fan-out, the error goes back to the
// originator alone.
func (r *EventRouter) Send(ctx context.Context, senderID, receiverID, content string, replyToID *string) (*domain.Message, error) {
	lock := r.stripeFor(domain.PairKey(senderID, receiverID))
	lock.Lock()
	defer lock.Unlock()

	wctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	msg, err := r.messages.Append(wctx, senderID, receiverID, content, replyToID)
	if err != nil {
		return nil, err
	}

	r.aggregator.OnAppend(ctx, msg)

	r.deliverOrPublish(msg.ReceiverID, domain.WSEvent{
		Event:            domain.EventMessageReceived,
		Message:          msg,
		ConversationWith: msg.SenderID,
		UnreadDelta:      1,
	}, msg)
	r.registry.Send(msg.SenderID, domain.WSEvent{
		Event:            domain.EventMessageReceived,
		Message:          msg,
		ConversationWith: msg.ReceiverID,
	})
	return msg, nil
}

// Edit replaces a message's content and fans out the updated copy.
func (r *EventRouter) Edit(ctx context.Context, requestorID, messageID, content string) (*domain.Message, error) {
	orig, err := r.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	lock := r.stripeFor(domain.PairKey(orig.SenderID, orig.ReceiverID))
	lock.Lock()
	defer lock.Unlock()

	wctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	msg, err := r.messages.Edit(wctx, messageID, requestorID, content)
	if err != nil {
		return nil, err
	}

	r.aggregator.OnEdit(ctx, msg)

	for _, userID := range []string{msg.SenderID, msg.ReceiverID} {
		r.registry.Send(userID, domain.WSEvent{
			Event:            domain.EventMessageUpdated,
			Message:          msg,
			ConversationWith: msg.CounterpartOf(userID),
		})
	}
	return msg, nil
}

// Delete tombstones a message and fans out the removal. The receiver's frame
// carries the unread correction when the message died unread.
func (r *EventRouter) Delete(ctx context.Context, requestorID, messageID string) error {
	orig, err := r.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}

	lock := r.stripeFor(domain.PairKey(orig.SenderID, orig.ReceiverID))
	lock.Lock()
	defer lock.Unlock()

	wctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	// re-read under the stripe so wasUnread reflects the committed state
	msg, err := r.messages.GetByID(wctx, messageID)
	if err != nil {
		return err
	}
	if msg.Deleted {
		// idempotent repeat, nothing to fan out
		if msg.SenderID != requestorID {
			return r.messages.SoftDelete(wctx, messageID, requestorID)
		}
		return nil
	}
	wasUnread := msg.ReadAt == nil

	if err := r.messages.SoftDelete(wctx, messageID, requestorID); err != nil {
		return err
	}

	r.aggregator.OnDelete(ctx, msg, wasUnread)

	var receiverDelta int64
	if wasUnread {
		receiverDelta = -1
	}
	r.registry.Send(msg.ReceiverID, domain.WSEvent{
		Event:            domain.EventMessageDeleted,
		MessageID:        msg.ID,
		ConversationWith: msg.SenderID,
		UnreadDelta:      receiverDelta,
	})
	r.registry.Send(msg.SenderID, domain.WSEvent{
		Event:            domain.EventMessageDeleted,
		MessageID:        msg.ID,
		ConversationWith: msg.ReceiverID,
	})
	return nil
}

// Read marks one message read and sends the receipt to both sides. A repeat
// on an already-read message changes nothing and fans out nothing.
func (r *EventRouter) Read(ctx context.Context, requestorID, messageID string) (*domain.Message, error) {
	orig, err := r.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	lock := r.stripeFor(domain.PairKey(orig.SenderID, orig.ReceiverID))
	lock.Lock()
	defer lock.Unlock()

	wctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	msg, err := r.messages.GetByID(wctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ReadAt != nil {
		if msg.ReceiverID != requestorID {
			return r.messages.MarkRead(wctx, messageID, requestorID)
		}
		return msg, nil
	}

	msg, err = r.messages.MarkRead(wctx, messageID, requestorID)
	if err != nil {
		return nil, err
	}

	r.aggregator.OnRead(ctx, msg)

	// receipt to the author, confirmation echo to the reader
	r.registry.Send(msg.SenderID, domain.WSEvent{
		Event:            domain.EventMessageRead,
		MessageID:        msg.ID,
		ReaderID:         msg.ReceiverID,
		ReadAt:           msg.ReadAt,
		ConversationWith: msg.ReceiverID,
	})
	r.registry.Send(msg.ReceiverID, domain.WSEvent{
		Event:            domain.EventMessageRead,
		MessageID:        msg.ID,
		ReaderID:         msg.ReceiverID,
		ReadAt:           msg.ReadAt,
		ConversationWith: msg.SenderID,
		UnreadDelta:      -1,
	})
	return msg, nil
}

// MarkAllRead reads every unread message from the counterpart and fans out
// one batch receipt carrying the count.
func (r *EventRouter) MarkAllRead(ctx context.Context, viewerID, counterpartID string) (int64, error) {
	lock := r.stripeFor(domain.PairKey(viewerID, counterpartID))
	lock.Lock()
	defer lock.Unlock()

	wctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	count, err := r.messages.MarkAllRead(wctx, counterpartID, viewerID)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	r.aggregator.OnMarkAllRead(ctx, viewerID, counterpartID)

	r.registry.Send(counterpartID, domain.WSEvent{
		Event:            domain.EventMessagesRead,
		ReaderID:         viewerID,
		Count:            count,
		ConversationWith: viewerID,
	})
	r.registry.Send(viewerID, domain.WSEvent{
		Event:            domain.EventMessagesRead,
		ReaderID:         viewerID,
		Count:            count,
		ConversationWith: counterpartID,
	})
	return count, nil
}

// Typing forwards a typing indicator when the counterpart is online. Nothing
// is persisted; starts are throttled per sender-counterpart pair, stops always
// pass so the indicator cannot stick.
func (r *EventRouter) Typing(senderID, counterpartID string, stop bool) {
	if !stop {
		r.typingMu.Lock()
		now := time.Now()
		// expired entries are of no further use; sweep them so the map
		// stays bounded by the pairs active inside one throttle window
		for k, last := range r.lastTyping {
			if now.Sub(last) >= r.typingThrottle {
				delete(r.lastTyping, k)
			}
		}
		key := senderID + ":" + counterpartID
		if last, ok := r.lastTyping[key]; ok && now.Sub(last) < r.typingThrottle {
			r.typingMu.Unlock()
			return
		}
		r.lastTyping[key] = now
		r.typingMu.Unlock()
	}

	event := domain.EventUserTyping
	if stop {
		event = domain.EventUserStoppedTyping
	}
	if !r.registry.IsOnline(counterpartID) {
		return
	}
	r.registry.Send(counterpartID, domain.WSEvent{
		Event:            event,
		UserID:           senderID,
		ConversationWith: senderID,
	})
}

// deliverOrPublish sends on the live channel, falling back to the
// notification stream for offline recipients.
func (r *EventRouter) deliverOrPublish(userID string, ev domain.WSEvent, msg *domain.Message) {
	if r.registry.Send(userID, ev) {
		return
	}
	if r.publisher == nil {
		return
	}
	err := r.publisher.Publish(context.Background(), repository.NotificationEvent{
		Event:       ev.Event,
		RecipientID: userID,
		Message:     msg,
		At:          time.Now().UTC(),
	})
	if err != nil {
		logger.Log.Warn("notification publish failed",
			zap.String("recipient", userID), zap.Error(err))
	}
}
