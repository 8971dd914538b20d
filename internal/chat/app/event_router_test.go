package app

import (
	"context"
	"testing"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// coldAggregator builds an aggregator whose cache reports cold, so the
// incremental hooks are no-ops and router behavior is isolated.
func coldAggregator(msgRepo *MockMessageRepository, cache *MockSummaryCache) *ConversationAggregator {
	cache.On("Warm", mock.Anything, mock.Anything).Return(false, nil).Maybe()
	users := new(MockUserRepository)
	presence := new(MockPresenceRepository)
	return NewConversationAggregator(msgRepo, users, cache, presence, NewRegistry(8))
}

func waitForEvents(t *testing.T, conn *fakeConn, n int) []domain.WSEvent {
	t.Helper()
	assert.Eventually(t, func() bool {
		return len(conn.Events()) >= n
	}, time.Second, 10*time.Millisecond)
	return conn.Events()
}

func TestEventRouterSendFansOutInOrder(t *testing.T) {
	ctx := context.Background()
	senderID := uuid.New().String()
	receiverID := uuid.New().String()

	msgRepo := new(MockMessageRepository)
	cache := new(MockSummaryCache)
	registry := NewRegistry(8)
	router := NewEventRouter(msgRepo, coldAggregator(msgRepo, cache), registry, nil, time.Second, time.Second)

	senderConn := newFakeConn()
	receiverConn := newFakeConn()
	registry.Attach(senderID, senderConn)
	registry.Attach(receiverID, receiverConn)

	committed := &domain.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    "hi there",
		CreatedAt:  time.Now().UTC(),
	}
	msgRepo.On("Append", mock.Anything, senderID, receiverID, "hi there", (*string)(nil)).Return(committed, nil)

	msg, err := router.Send(ctx, senderID, receiverID, "hi there", nil)

	assert.NoError(t, err)
	assert.Equal(t, committed.ID, msg.ID)

	recvEvents := waitForEvents(t, receiverConn, 1)
	assert.Equal(t, domain.EventMessageReceived, recvEvents[0].Event)
	assert.Equal(t, senderID, recvEvents[0].ConversationWith)
	assert.Equal(t, int64(1), recvEvents[0].UnreadDelta)

	sendEvents := waitForEvents(t, senderConn, 1)
	assert.Equal(t, domain.EventMessageReceived, sendEvents[0].Event)
	assert.Equal(t, receiverID, sendEvents[0].ConversationWith)
	assert.Equal(t, int64(0), sendEvents[0].UnreadDelta)

	msgRepo.AssertExpectations(t)
}

func TestEventRouterSendStoreFailureNotApplied(t *testing.T) {
	ctx := context.Background()
	senderID := uuid.New().String()
	receiverID := uuid.New().String()

	msgRepo := new(MockMessageRepository)
	cache := new(MockSummaryCache)
	registry := NewRegistry(8)
	publisher := new(MockStreamPublisher)
	router := NewEventRouter(msgRepo, coldAggregator(msgRepo, cache), registry, publisher, time.Second, time.Second)

	receiverConn := newFakeConn()
	registry.Attach(receiverID, receiverConn)

	msgRepo.On("Append", mock.Anything, senderID, receiverID, "hi", (*string)(nil)).
		Return(nil, apperr.StoreUnavailable(assert.AnError))

	msg, err := router.Send(ctx, senderID, receiverID, "hi", nil)

	assert.Nil(t, msg)
	assert.True(t, apperr.Is(err, apperr.KindStoreUnavailable))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, receiverConn.Events())
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestEventRouterSendOfflineReceiverPublishes(t *testing.T) {
	ctx := context.Background()
	senderID := uuid.New().String()
	receiverID := uuid.New().String()

	msgRepo := new(MockMessageRepository)
	cache := new(MockSummaryCache)
	registry := NewRegistry(8)
	publisher := new(MockStreamPublisher)
	router := NewEventRouter(msgRepo, coldAggregator(msgRepo, cache), registry, publisher, time.Second, time.Second)

	committed := &domain.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    "are you there",
		CreatedAt:  time.Now().UTC(),
	}
	msgRepo.On("Append", mock.Anything, senderID, receiverID, "are you there", (*string)(nil)).Return(committed, nil)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	_, err := router.Send(ctx, senderID, receiverID, "are you there", nil)

	assert.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestEventRouterEditForbiddenNotBroadcast(t *testing.T) {
	ctx := context.Background()
	senderID := uuid.New().String()
	receiverID := uuid.New().String()
	messageID := uuid.New().String()

	msgRepo := new(MockMessageRepository)
	cache := new(MockSummaryCache)
	registry := NewRegistry(8)
	router := NewEventRouter(msgRepo, coldAggregator(msgRepo, cache), registry, nil, time.Second, time.Second)

	senderConn := newFakeConn()
	registry.Attach(senderID, senderConn)

	stored := &domain.Message{ID: messageID, SenderID: senderID, ReceiverID: receiverID, Content: "mine"}
	msgRepo.On("GetByID", mock.Anything, messageID).Return(stored, nil)
	msgRepo.On("Edit", mock.Anything, messageID, receiverID, "hijack").
		Return(nil, apperr.Forbidden("only the sender may edit a message"))

	_, err := router.Edit(ctx, receiverID, messageID, "hijack")

	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, senderConn.Events())
}

func TestEventRouterDeleteRepeatIsNoop(t *testing.T) {
	ctx := context.Background()
	senderID := uuid.New().String()
	receiverID := uuid.New().String()
	messageID := uuid.New().String()

	msgRepo := new(MockMessageRepository)
	cache := new(MockSummaryCache)
	registry := NewRegistry(8)
	router := NewEventRouter(msgRepo, coldAggregator(msgRepo, cache), registry, nil, time.Second, time.Second)

	receiverConn := newFakeConn()
	registry.Attach(receiverID, receiverConn)

	tombstone := &domain.Message{ID: messageID, SenderID: senderID, ReceiverID: receiverID, Deleted: true}
	msgRepo.On("GetByID", mock.Anything, messageID).Return(tombstone, nil)

	err := router.Delete(ctx, senderID, messageID)

	assert.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, receiverConn.Events())
	msgRepo.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything, mock.Anything)
}

func TestEventRouterDeleteFansOutUnreadCorrection(t *testing.T) {
	ctx := context.Background()
	senderID := uuid.New().String()
	receiverID := uuid.New().String()
	messageID := uuid.New().String()

	msgRepo := new(MockMessageRepository)
	cache := new(MockSummaryCache)
	registry := NewRegistry(8)
	router := NewEventRouter(msgRepo, coldAggregator(msgRepo, cache), registry, nil, time.Second, time.Second)

	receiverConn := newFakeConn()
	registry.Attach(receiverID, receiverConn)

	unread := &domain.Message{ID: messageID, SenderID: senderID, ReceiverID: receiverID, Content: "oops"}
	msgRepo.On("GetByID", mock.Anything, messageID).Return(unread, nil)
	msgRepo.On("SoftDelete", mock.Anything, messageID, senderID).Return(nil)
	msgRepo.On("LastNonDeleted", mock.Anything, senderID, receiverID).Return(nil, nil).Maybe()

	err := router.Delete(ctx, senderID, messageID)

	assert.NoError(t, err)
	events := waitForEvents(t, receiverConn, 1)
	assert.Equal(t, domain.EventMessageDeleted, events[0].Event)
	assert.Equal(t, messageID, events[0].MessageID)
	assert.Equal(t, int64(-1), events[0].UnreadDelta)
}

func TestEventRouterReadReceiptBothSides(t *testing.T) {
	ctx := context.Background()
	senderID := uuid.New().String()
	receiverID := uuid.New().String()
	messageID := uuid.New().String()

	msgRepo := new(MockMessageRepository)
	cache := new(MockSummaryCache)
	registry := NewRegistry(8)
	router := NewEventRouter(msgRepo, coldAggregator(msgRepo, cache), registry, nil, time.Second, time.Second)

	senderConn := newFakeConn()
	receiverConn := newFakeConn()
	registry.Attach(senderID, senderConn)
	registry.Attach(receiverID, receiverConn)

	unread := &domain.Message{ID: messageID, SenderID: senderID, ReceiverID: receiverID, Content: "hello"}
	now := time.Now().UTC()
	read := &domain.Message{ID: messageID, SenderID: senderID, ReceiverID: receiverID, Content: "hello", ReadAt: &now}

	msgRepo.On("GetByID", mock.Anything, messageID).Return(unread, nil)
	msgRepo.On("MarkRead", mock.Anything, messageID, receiverID).Return(read, nil)

	msg, err := router.Read(ctx, receiverID, messageID)

	assert.NoError(t, err)
	assert.NotNil(t, msg.ReadAt)

	senderEvents := waitForEvents(t, senderConn, 1)
	assert.Equal(t, domain.EventMessageRead, senderEvents[0].Event)
	assert.Equal(t, receiverID, senderEvents[0].ReaderID)

	receiverEvents := waitForEvents(t, receiverConn, 1)
	assert.Equal(t, int64(-1), receiverEvents[0].UnreadDelta)
}

func TestEventRouterReadRepeatKeepsTimestamp(t *testing.T) {
	ctx := context.Background()
	senderID := uuid.New().String()
	receiverID := uuid.New().String()
	messageID := uuid.New().String()

	msgRepo := new(MockMessageRepository)
	cache := new(MockSummaryCache)
	registry := NewRegistry(8)
	router := NewEventRouter(msgRepo, coldAggregator(msgRepo, cache), registry, nil, time.Second, time.Second)

	senderConn := newFakeConn()
	registry.Attach(senderID, senderConn)

	then := time.Now().UTC().Add(-time.Hour)
	read := &domain.Message{ID: messageID, SenderID: senderID, ReceiverID: receiverID, ReadAt: &then}
	msgRepo.On("GetByID", mock.Anything, messageID).Return(read, nil)

	msg, err := router.Read(ctx, receiverID, messageID)

	assert.NoError(t, err)
	assert.Equal(t, then, *msg.ReadAt)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, senderConn.Events())
	msgRepo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestEventRouterMarkAllReadCount(t *testing.T) {
	ctx := context.Background()
	viewerID := uuid.New().String()
	counterpartID := uuid.New().String()

	msgRepo := new(MockMessageRepository)
	cache := new(MockSummaryCache)
	registry := NewRegistry(8)
	router := NewEventRouter(msgRepo, coldAggregator(msgRepo, cache), registry, nil, time.Second, time.Second)

	counterpartConn := newFakeConn()
	registry.Attach(counterpartID, counterpartConn)

	msgRepo.On("MarkAllRead", mock.Anything, counterpartID, viewerID).Return(int64(3), nil)

	count, err := router.MarkAllRead(ctx, viewerID, counterpartID)

	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)

	events := waitForEvents(t, counterpartConn, 1)
	assert.Equal(t, domain.EventMessagesRead, events[0].Event)
	assert.Equal(t, int64(3), events[0].Count)
	assert.Equal(t, viewerID, events[0].ReaderID)
}

func TestEventRouterTypingThrottled(t *testing.T) {
	senderID := uuid.New().String()
	receiverID := uuid.New().String()

	msgRepo := new(MockMessageRepository)
	cache := new(MockSummaryCache)
	registry := NewRegistry(8)
	router := NewEventRouter(msgRepo, coldAggregator(msgRepo, cache), registry, nil, time.Second, 3*time.Second)

	receiverConn := newFakeConn()
	registry.Attach(receiverID, receiverConn)

	router.Typing(senderID, receiverID, false)
	router.Typing(senderID, receiverID, false)
	router.Typing(senderID, receiverID, false)
	// stop always goes through so the indicator cannot stick
	router.Typing(senderID, receiverID, true)

	assert.Eventually(t, func() bool {
		return len(receiverConn.Events()) == 2
	}, time.Second, 10*time.Millisecond)

	events := receiverConn.Events()
	assert.Equal(t, domain.EventUserTyping, events[0].Event)
	assert.Equal(t, domain.EventUserStoppedTyping, events[1].Event)
}

func TestEventRouterTypingThrottleEvictsExpired(t *testing.T) {
	msgRepo := new(MockMessageRepository)
	cache := new(MockSummaryCache)
	registry := NewRegistry(8)
	router := NewEventRouter(msgRepo, coldAggregator(msgRepo, cache), registry, nil, time.Second, 20*time.Millisecond)

	router.Typing(uuid.New().String(), uuid.New().String(), false)
	router.Typing(uuid.New().String(), uuid.New().String(), false)
	time.Sleep(50 * time.Millisecond)

	// a start after the window sweeps the two expired pairs out
	router.Typing(uuid.New().String(), uuid.New().String(), false)

	router.typingMu.Lock()
	defer router.typingMu.Unlock()
	assert.Len(t, router.lastTyping, 1)
}

func TestEventRouterTypingOfflineDropped(t *testing.T) {
	msgRepo := new(MockMessageRepository)
	cache := new(MockSummaryCache)
	registry := NewRegistry(8)
	router := NewEventRouter(msgRepo, coldAggregator(msgRepo, cache), registry, nil, time.Second, time.Second)

	// no panic, no delivery target, nothing to assert beyond a clean return
	router.Typing(uuid.New().String(), uuid.New().String(), false)
}
