package app

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/pkg/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// memStore is an in-memory MessageRepository used to check that the
// incrementally maintained projection always equals a full recompute.
type memStore struct {
	mu    sync.Mutex
	rows  []domain.Message
	users map[string]domain.User
}

func newMemStore(users ...domain.User) *memStore {
	byID := make(map[string]domain.User)
	for _, u := range users {
		byID[u.ID] = u
	}
	return &memStore{users: byID}
}

func (s *memStore) AutoMigrate() error { return nil }

func (s *memStore) Append(_ context.Context, senderID, receiverID, content string, replyToID *string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := domain.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		ReplyToID:  replyToID,
		CreatedAt:  time.Now().UTC(),
	}
	s.rows = append(s.rows, msg)
	return &msg, nil
}

func (s *memStore) Edit(_ context.Context, messageID, requestorID, content string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == messageID {
			now := time.Now().UTC()
			s.rows[i].Content = content
			s.rows[i].EditedAt = &now
			msg := s.rows[i]
			return &msg, nil
		}
	}
	return nil, apperr.NotFound("message not found")
}

func (s *memStore) SoftDelete(_ context.Context, messageID, requestorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == messageID {
			s.rows[i].Deleted = true
			return nil
		}
	}
	return apperr.NotFound("message not found")
}

func (s *memStore) MarkRead(_ context.Context, messageID, requestorID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == messageID {
			if s.rows[i].ReadAt == nil {
				now := time.Now().UTC()
				s.rows[i].ReadAt = &now
			}
			msg := s.rows[i]
			return &msg, nil
		}
	}
	return nil, apperr.NotFound("message not found")
}

func (s *memStore) MarkAllRead(_ context.Context, counterpartID, viewerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	now := time.Now().UTC()
	for i := range s.rows {
		if s.rows[i].SenderID == counterpartID && s.rows[i].ReceiverID == viewerID &&
			s.rows[i].ReadAt == nil && !s.rows[i].Deleted {
			s.rows[i].ReadAt = &now
			count++
		}
	}
	return count, nil
}

func (s *memStore) ListBetween(_ context.Context, userA, userB string, includeDeleted bool) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	pair := domain.PairKey(userA, userB)
	for _, m := range s.rows {
		if domain.PairKey(m.SenderID, m.ReceiverID) != pair {
			continue
		}
		if m.Deleted && !includeDeleted {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) ListConversationsFor(_ context.Context, userID string) ([]domain.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[string]domain.Message)
	unread := make(map[string]int64)
	for _, m := range s.rows {
		if m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		if m.Deleted {
			continue
		}
		cp := m.CounterpartOf(userID)
		cur, ok := latest[cp]
		if !ok || m.CreatedAt.After(cur.CreatedAt) || (m.CreatedAt.Equal(cur.CreatedAt) && m.ID > cur.ID) {
			latest[cp] = m
		}
		if m.ReceiverID == userID && m.ReadAt == nil {
			unread[cp]++
		}
	}

	var out []domain.ConversationSummary
	for cp, m := range latest {
		msg := m
		u := s.users[cp]
		out = append(out, domain.ConversationSummary{
			Counterpart: domain.Counterpart{ID: cp, Username: u.Username, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL},
			LastMessage: domain.PreviewOf(&msg, userID),
			UnreadCount: unread[cp],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt)
	})
	return out, nil
}

func (s *memStore) LastNonDeleted(_ context.Context, userA, userB string) (*domain.Message, error) {
	msgs, _ := s.ListBetween(context.Background(), userA, userB, false)
	if len(msgs) == 0 {
		return nil, nil
	}
	msg := msgs[len(msgs)-1]
	return &msg, nil
}

func (s *memStore) UnreadCount(_ context.Context, viewerID, counterpartID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, m := range s.rows {
		if m.SenderID == counterpartID && m.ReceiverID == viewerID && m.ReadAt == nil && !m.Deleted {
			count++
		}
	}
	return count, nil
}

func (s *memStore) GetByID(_ context.Context, messageID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.ID == messageID {
			msg := m
			return &msg, nil
		}
	}
	return nil, apperr.NotFound("message not found")
}

// memSummaryCache is an in-memory SummaryCache.
type memSummaryCache struct {
	mu   sync.Mutex
	data map[string]map[string]repository.CachedSummary
}

func newMemSummaryCache() *memSummaryCache {
	return &memSummaryCache{data: make(map[string]map[string]repository.CachedSummary)}
}

func (c *memSummaryCache) GetAll(_ context.Context, viewerID string) (map[string]repository.CachedSummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.data[viewerID]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]repository.CachedSummary, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, true, nil
}

func (c *memSummaryCache) Warm(_ context.Context, viewerID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[viewerID]
	return ok, nil
}

func (c *memSummaryCache) Get(_ context.Context, viewerID, counterpartID string) (*repository.CachedSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.data[viewerID]; ok {
		if s, ok := h[counterpartID]; ok {
			return &s, nil
		}
	}
	return nil, nil
}

func (c *memSummaryCache) Put(_ context.Context, viewerID string, summary repository.CachedSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[viewerID]; !ok {
		return nil
	}
	c.data[viewerID][summary.CounterpartID] = summary
	return nil
}

func (c *memSummaryCache) PutAll(_ context.Context, viewerID string, summaries []repository.CachedSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := make(map[string]repository.CachedSummary, len(summaries))
	for _, s := range summaries {
		h[s.CounterpartID] = s
	}
	c.data[viewerID] = h
	return nil
}

func (c *memSummaryCache) Remove(_ context.Context, viewerID, counterpartID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.data[viewerID]; ok {
		delete(h, counterpartID)
	}
	return nil
}

func (c *memSummaryCache) Invalidate(_ context.Context, viewerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, viewerID)
	return nil
}

// memUsers / memPresence round out the aggregator's collaborators.
type memUsers struct{ users map[string]domain.User }

func (u *memUsers) AutoMigrate() error { return nil }

func (u *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	if user, ok := u.users[id]; ok {
		return &user, nil
	}
	return nil, apperr.NotFound("user not found")
}

func (u *memUsers) GetByIDs(_ context.Context, ids []string) (map[string]domain.User, error) {
	out := make(map[string]domain.User)
	for _, id := range ids {
		if user, ok := u.users[id]; ok {
			out[id] = user
		}
	}
	return out, nil
}

type memPresence struct{}

func (memPresence) Touch(context.Context, string, time.Time) error { return nil }
func (memPresence) LastSeen(context.Context, string) (*time.Time, error) {
	return nil, nil
}

func testUsers() []domain.User {
	return []domain.User{
		{ID: "00000000-0000-0000-0000-00000000000a", Username: "alice"},
		{ID: "00000000-0000-0000-0000-00000000000b", Username: "bob"},
		{ID: "00000000-0000-0000-0000-00000000000c", Username: "carol"},
	}
}

func newTestAggregator(store *memStore, users []domain.User) (*ConversationAggregator, *memSummaryCache) {
	byID := make(map[string]domain.User)
	for _, u := range users {
		byID[u.ID] = u
	}
	cache := newMemSummaryCache()
	return NewConversationAggregator(store, &memUsers{users: byID}, cache, memPresence{}, NewRegistry(8)), cache
}

// assertCacheMatchesRecompute checks the core invariant: serving from the
// incrementally maintained cache equals recomputing from the store.
func assertCacheMatchesRecompute(t *testing.T, agg *ConversationAggregator, store *memStore, viewerID string) {
	t.Helper()
	ctx := context.Background()

	cached, err := agg.ListFor(ctx, viewerID)
	assert.NoError(t, err)

	recomputed, err := store.ListConversationsFor(ctx, viewerID)
	assert.NoError(t, err)

	assert.Equal(t, len(recomputed), len(cached), "viewer %s summary count", viewerID)
	byID := make(map[string]domain.ConversationSummary)
	for _, s := range recomputed {
		byID[s.Counterpart.ID] = s
	}
	for _, s := range cached {
		want, ok := byID[s.Counterpart.ID]
		assert.True(t, ok, "viewer %s unexpected counterpart %s", viewerID, s.Counterpart.ID)
		assert.Equal(t, want.UnreadCount, s.UnreadCount, "viewer %s unread for %s", viewerID, s.Counterpart.ID)
		assert.Equal(t, want.LastMessage.ID, s.LastMessage.ID, "viewer %s preview for %s", viewerID, s.Counterpart.ID)
		assert.Equal(t, want.LastMessage.Content, s.LastMessage.Content)
		assert.Equal(t, want.LastMessage.Sender, s.LastMessage.Sender)
	}
}

func TestAggregatorCacheEqualsRecompute(t *testing.T) {
	ctx := context.Background()
	users := testUsers()
	alice, bob, carol := users[0].ID, users[1].ID, users[2].ID

	store := newMemStore(users...)
	agg, _ := newTestAggregator(store, users)

	// warm every viewer so incremental hooks engage
	for _, v := range []string{alice, bob, carol} {
		_, err := agg.ListFor(ctx, v)
		assert.NoError(t, err)
	}

	send := func(from, to, content string) *domain.Message {
		msg, err := store.Append(ctx, from, to, content, nil)
		assert.NoError(t, err)
		agg.OnAppend(ctx, msg)
		return msg
	}

	m1 := send(alice, bob, "hey bob")
	m2 := send(bob, alice, "hey alice")
	send(carol, alice, "it's carol")
	m4 := send(alice, bob, "you around?")

	for _, v := range []string{alice, bob, carol} {
		assertCacheMatchesRecompute(t, agg, store, v)
	}

	// read one
	read, err := store.MarkRead(ctx, m1.ID, bob)
	assert.NoError(t, err)
	agg.OnRead(ctx, read)
	assertCacheMatchesRecompute(t, agg, store, bob)

	// edit the preview message
	edited, err := store.Edit(ctx, m4.ID, alice, "you around tonight?")
	assert.NoError(t, err)
	agg.OnEdit(ctx, edited)
	assertCacheMatchesRecompute(t, agg, store, alice)
	assertCacheMatchesRecompute(t, agg, store, bob)

	// delete the preview message unread: step-back plus unread correction
	before, err := store.GetByID(ctx, m4.ID)
	assert.NoError(t, err)
	wasUnread := before.ReadAt == nil
	assert.NoError(t, store.SoftDelete(ctx, m4.ID, alice))
	agg.OnDelete(ctx, before, wasUnread)
	assertCacheMatchesRecompute(t, agg, store, alice)
	assertCacheMatchesRecompute(t, agg, store, bob)

	// mark whole conversation read
	_, err = store.MarkAllRead(ctx, bob, alice)
	assert.NoError(t, err)
	agg.OnMarkAllRead(ctx, alice, bob)
	assertCacheMatchesRecompute(t, agg, store, alice)

	_ = m2
}

func TestAggregatorDeleteLastMessageRemovesSummary(t *testing.T) {
	ctx := context.Background()
	users := testUsers()
	alice, bob := users[0].ID, users[1].ID

	store := newMemStore(users...)
	agg, _ := newTestAggregator(store, users)

	msg, err := store.Append(ctx, alice, bob, "only message", nil)
	assert.NoError(t, err)

	for _, v := range []string{alice, bob} {
		_, err := agg.ListFor(ctx, v)
		assert.NoError(t, err)
	}
	agg.OnAppend(ctx, msg)

	assert.NoError(t, store.SoftDelete(ctx, msg.ID, alice))
	agg.OnDelete(ctx, msg, true)

	for _, v := range []string{alice, bob} {
		summaries, err := agg.ListFor(ctx, v)
		assert.NoError(t, err)
		assert.Empty(t, summaries, "viewer %s should have no conversations left", v)
	}
}

func TestAggregatorColdCacheRebuilds(t *testing.T) {
	ctx := context.Background()
	users := testUsers()
	alice, bob := users[0].ID, users[1].ID

	store := newMemStore(users...)
	agg, cache := newTestAggregator(store, users)

	// writes land before any viewer warmed the cache
	msg, err := store.Append(ctx, alice, bob, "first contact", nil)
	assert.NoError(t, err)
	agg.OnAppend(ctx, msg)

	warm, err := cache.Warm(ctx, bob)
	assert.NoError(t, err)
	assert.False(t, warm, "hooks must not partially warm a cold cache")

	summaries, err := agg.ListFor(ctx, bob)
	assert.NoError(t, err)
	assert.Len(t, summaries, 1)
	assert.Equal(t, int64(1), summaries[0].UnreadCount)
	assert.Equal(t, "first contact", summaries[0].LastMessage.Content)
	assert.Equal(t, domain.SenderThem, summaries[0].LastMessage.Sender)

	// now warm: incremental updates engage
	msg2, err := store.Append(ctx, alice, bob, "second", nil)
	assert.NoError(t, err)
	agg.OnAppend(ctx, msg2)
	assertCacheMatchesRecompute(t, agg, store, bob)
}

func TestAggregatorEditNonPreviewKeepsPreview(t *testing.T) {
	ctx := context.Background()
	users := testUsers()
	alice, bob := users[0].ID, users[1].ID

	store := newMemStore(users...)
	agg, _ := newTestAggregator(store, users)

	first, err := store.Append(ctx, alice, bob, "first", nil)
	assert.NoError(t, err)
	second, err := store.Append(ctx, alice, bob, "second", nil)
	assert.NoError(t, err)

	for _, v := range []string{alice, bob} {
		_, err := agg.ListFor(ctx, v)
		assert.NoError(t, err)
	}

	edited, err := store.Edit(ctx, first.ID, alice, "first, edited")
	assert.NoError(t, err)
	agg.OnEdit(ctx, edited)

	summaries, err := agg.ListFor(ctx, bob)
	assert.NoError(t, err)
	assert.Len(t, summaries, 1)
	assert.Equal(t, second.ID, summaries[0].LastMessage.ID)
	assert.Equal(t, "second", summaries[0].LastMessage.Content)
}
