package app

import (
	"context"
	"sync"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/internal/chat/repository"

	"github.com/stretchr/testify/mock"
)

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// AutoMigrate moke migration
func (m *MockMessageRepository) AutoMigrate() error {
	args := m.Called()
	return args.Error(0)
}

// Append moke append message
func (m *MockMessageRepository) Append(ctx context.Context, senderID, receiverID, content string, replyToID *string) (*domain.Message, error) {
	args := m.Called(ctx, senderID, receiverID, content, replyToID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// Edit moke edit message
func (m *MockMessageRepository) Edit(ctx context.Context, messageID, requestorID, content string) (*domain.Message, error) {
	args := m.Called(ctx, messageID, requestorID, content)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// SoftDelete moke tombstone message
func (m *MockMessageRepository) SoftDelete(ctx context.Context, messageID, requestorID string) error {
	args := m.Called(ctx, messageID, requestorID)
	return args.Error(0)
}

// MarkRead moke mark one read
func (m *MockMessageRepository) MarkRead(ctx context.Context, messageID, requestorID string) (*domain.Message, error) {
	args := m.Called(ctx, messageID, requestorID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkAllRead moke mark conversation read
func (m *MockMessageRepository) MarkAllRead(ctx context.Context, counterpartID, viewerID string) (int64, error) {
	args := m.Called(ctx, counterpartID, viewerID)
	return args.Get(0).(int64), args.Error(1)
}

// ListBetween moke list thread
func (m *MockMessageRepository) ListBetween(ctx context.Context, userA, userB string, includeDeleted bool) ([]domain.Message, error) {
	args := m.Called(ctx, userA, userB, includeDeleted)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListConversationsFor moke full summary recompute
func (m *MockMessageRepository) ListConversationsFor(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ConversationSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

// LastNonDeleted moke preview step-back
func (m *MockMessageRepository) LastNonDeleted(ctx context.Context, userA, userB string) (*domain.Message, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// UnreadCount moke unread counter
func (m *MockMessageRepository) UnreadCount(ctx context.Context, viewerID, counterpartID string) (int64, error) {
	args := m.Called(ctx, viewerID, counterpartID)
	return args.Get(0).(int64), args.Error(1)
}

// GetByID moke get one message
func (m *MockMessageRepository) GetByID(ctx context.Context, messageID string) (*domain.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockUserRepository Mock UserRepository
type MockUserRepository struct {
	mock.Mock
}

// AutoMigrate moke migration
func (m *MockUserRepository) AutoMigrate() error {
	args := m.Called()
	return args.Error(0)
}

// GetByID moke get one user
func (m *MockUserRepository) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// GetByIDs moke batch user load
func (m *MockUserRepository) GetByIDs(ctx context.Context, userIDs []string) (map[string]domain.User, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) != nil {
		return args.Get(0).(map[string]domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockSummaryCache Mock SummaryCache
type MockSummaryCache struct {
	mock.Mock
}

// GetAll moke load projection
func (m *MockSummaryCache) GetAll(ctx context.Context, viewerID string) (map[string]repository.CachedSummary, bool, error) {
	args := m.Called(ctx, viewerID)
	if args.Get(0) != nil {
		return args.Get(0).(map[string]repository.CachedSummary), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

// Warm moke warm check
func (m *MockSummaryCache) Warm(ctx context.Context, viewerID string) (bool, error) {
	args := m.Called(ctx, viewerID)
	return args.Bool(0), args.Error(1)
}

// Get moke one summary
func (m *MockSummaryCache) Get(ctx context.Context, viewerID, counterpartID string) (*repository.CachedSummary, error) {
	args := m.Called(ctx, viewerID, counterpartID)
	if args.Get(0) != nil {
		return args.Get(0).(*repository.CachedSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

// Put moke store one summary
func (m *MockSummaryCache) Put(ctx context.Context, viewerID string, summary repository.CachedSummary) error {
	args := m.Called(ctx, viewerID, summary)
	return args.Error(0)
}

// PutAll moke warm projection
func (m *MockSummaryCache) PutAll(ctx context.Context, viewerID string, summaries []repository.CachedSummary) error {
	args := m.Called(ctx, viewerID, summaries)
	return args.Error(0)
}

// Remove moke drop one summary
func (m *MockSummaryCache) Remove(ctx context.Context, viewerID, counterpartID string) error {
	args := m.Called(ctx, viewerID, counterpartID)
	return args.Error(0)
}

// Invalidate moke drop projection
func (m *MockSummaryCache) Invalidate(ctx context.Context, viewerID string) error {
	args := m.Called(ctx, viewerID)
	return args.Error(0)
}

// MockPresenceRepository Mock PresenceRepository
type MockPresenceRepository struct {
	mock.Mock
}

// Touch moke last-seen update
func (m *MockPresenceRepository) Touch(ctx context.Context, userID string, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

// LastSeen moke last-seen read
func (m *MockPresenceRepository) LastSeen(ctx context.Context, userID string) (*time.Time, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*time.Time), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockStreamPublisher Mock StreamPublisher
type MockStreamPublisher struct {
	mock.Mock
}

// Publish moke notification publish
func (m *MockStreamPublisher) Publish(ctx context.Context, ev repository.NotificationEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// fakeConn records everything written to it; Block gates writes so slow
// consumers can be simulated.
type fakeConn struct {
	mu     sync.Mutex
	events []domain.WSEvent
	closed bool
	gate   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{}
}

func newGatedConn() *fakeConn {
	return &fakeConn{gate: make(chan struct{})}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev, ok := v.(domain.WSEvent); ok {
		c.events = append(c.events, ev)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Events() []domain.WSEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.WSEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
