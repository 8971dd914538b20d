// Package client holds the pure reconciliation reducers a chat client runs
// against the live event stream. Nothing here touches the network; the
// durable REST surface stays authoritative and these reducers only keep the
// local view consistent between fetches.
package client

import (
	"sort"
	"time"

	"marketplace_chat_service/internal/chat/domain"
)

// optimisticMatchWindow bounds how far apart the local and committed
// timestamps of an optimistic send may be and still refer to the same message.
const optimisticMatchWindow = 5 * time.Second

// ThreadState is the local view of one conversation thread: committed
// messages keyed by id plus optimistic sends awaiting confirmation.
type ThreadState struct {
	viewerID string
	messages map[string]domain.Message
	pending  map[string]domain.Message
	failed   map[string]domain.Message

	// deleted remembers locally applied deletes so a stale fetch or a
	// replayed event cannot resurrect the message.
	deleted map[string]struct{}
}

// NewThreadState create an empty thread view for viewerID
func NewThreadState(viewerID string) *ThreadState {
	return &ThreadState{
		viewerID: viewerID,
		messages: make(map[string]domain.Message),
		pending:  make(map[string]domain.Message),
		failed:   make(map[string]domain.Message),
		deleted:  make(map[string]struct{}),
	}
}

// Seed merges a durable fetch into the thread. Live events applied while the
// fetch was in flight are kept when they carry newer state (edit, read,
// delete) than the fetched copy.
func (t *ThreadState) Seed(msgs []domain.Message) {
	for _, fetched := range msgs {
		if _, gone := t.deleted[fetched.ID]; gone {
			continue
		}
		local, ok := t.messages[fetched.ID]
		if !ok {
			t.messages[fetched.ID] = fetched
			continue
		}
		if local.EditedAt != nil && fetched.EditedAt == nil {
			fetched.Content = local.Content
			fetched.EditedAt = local.EditedAt
		}
		if local.ReadAt != nil && fetched.ReadAt == nil {
			fetched.ReadAt = local.ReadAt
		}
		t.messages[fetched.ID] = fetched
	}
}

// Reload replaces the thread with a fresh durable fetch after a reconnect,
// when events may have been missed entirely. Messages deleted while offline
// drop out because the fetch no longer carries them; the tombstones are
// cleared since the fetch is now the authority.
func (t *ThreadState) Reload(msgs []domain.Message) {
	t.messages = make(map[string]domain.Message, len(msgs))
	t.deleted = make(map[string]struct{})
	for _, m := range msgs {
		t.messages[m.ID] = m
	}
}

// AddPending records an optimistic send under a client-generated temp id. The
// entry renders immediately and is replaced by the committed copy on echo.
func (t *ThreadState) AddPending(tempID, receiverID, content string) {
	t.pending[tempID] = domain.Message{
		ID:         tempID,
		SenderID:   t.viewerID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
}

// Reject moves a pending send into the failed set; the caller surfaces it
// with a retry affordance. The durable log never saw the message.
func (t *ThreadState) Reject(tempID string) {
	if m, ok := t.pending[tempID]; ok {
		delete(t.pending, tempID)
		t.failed[tempID] = m
	}
}

// Apply folds one live event into the thread. Unknown ids insert, known ids
// replace, so replay and duplicate delivery are harmless.
func (t *ThreadState) Apply(ev domain.WSEvent) {
	switch ev.Event {
	case domain.EventMessageReceived:
		if ev.Message == nil {
			return
		}
		if _, gone := t.deleted[ev.Message.ID]; gone {
			return
		}
		if _, ok := t.messages[ev.Message.ID]; !ok {
			t.matchPending(ev.Message)
		}
		t.messages[ev.Message.ID] = *ev.Message

	case domain.EventMessageUpdated:
		if ev.Message == nil {
			return
		}
		if _, gone := t.deleted[ev.Message.ID]; gone {
			return
		}
		t.messages[ev.Message.ID] = *ev.Message

	case domain.EventMessageDeleted:
		delete(t.messages, ev.MessageID)
		t.deleted[ev.MessageID] = struct{}{}

	case domain.EventMessageRead:
		if m, ok := t.messages[ev.MessageID]; ok {
			m.ReadAt = ev.ReadAt
			t.messages[ev.MessageID] = m
		}

	case domain.EventMessagesRead:
		// batch receipt: everything the reader received is now read
		now := time.Now().UTC()
		for id, m := range t.messages {
			if m.ReceiverID == ev.ReaderID && m.ReadAt == nil {
				m.ReadAt = &now
				t.messages[id] = m
			}
		}
	}
}

// matchPending resolves the committed copy of an optimistic send: same
// sender, same content, committed close to the local timestamp.
func (t *ThreadState) matchPending(committed *domain.Message) {
	if committed.SenderID != t.viewerID {
		return
	}
	for tempID, p := range t.pending {
		if p.Content != committed.Content || p.ReceiverID != committed.ReceiverID {
			continue
		}
		delta := committed.CreatedAt.Sub(p.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= optimisticMatchWindow {
			delete(t.pending, tempID)
			return
		}
	}
}

// Messages returns the thread in (createdAt, id) order, optimistic sends
// included.
func (t *ThreadState) Messages() []domain.Message {
	out := make([]domain.Message, 0, len(t.messages)+len(t.pending))
	for _, m := range t.messages {
		out = append(out, m)
	}
	for _, m := range t.pending {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Failed returns the rejected optimistic sends awaiting a retry decision.
func (t *ThreadState) Failed() []domain.Message {
	out := make([]domain.Message, 0, len(t.failed))
	for _, m := range t.failed {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ConversationListState is the local view of the conversation list. Unread
// counts move only by the signed deltas events carry, never by guessing.
type ConversationListState struct {
	viewerID  string
	summaries map[string]domain.ConversationSummary
	stale     map[string]bool
}

// NewConversationListState create an empty list view for viewerID
func NewConversationListState(viewerID string) *ConversationListState {
	return &ConversationListState{
		viewerID:  viewerID,
		summaries: make(map[string]domain.ConversationSummary),
		stale:     make(map[string]bool),
	}
}

// Refresh replaces the whole list with a fresh durable fetch.
func (l *ConversationListState) Refresh(summaries []domain.ConversationSummary) {
	l.summaries = make(map[string]domain.ConversationSummary, len(summaries))
	l.stale = make(map[string]bool)
	for _, s := range summaries {
		l.summaries[s.Counterpart.ID] = s
	}
}

// Apply folds one live event into the list.
func (l *ConversationListState) Apply(ev domain.WSEvent) {
	counterpartID := ev.ConversationWith
	if counterpartID == "" {
		return
	}

	switch ev.Event {
	case domain.EventMessageReceived:
		if ev.Message == nil {
			return
		}
		s := l.summaries[counterpartID]
		s.Counterpart.ID = counterpartID
		s.LastMessage = domain.PreviewOf(ev.Message, l.viewerID)
		s.UnreadCount += ev.UnreadDelta
		l.summaries[counterpartID] = s

	case domain.EventMessageUpdated:
		if ev.Message == nil {
			return
		}
		s, ok := l.summaries[counterpartID]
		if !ok || s.LastMessage == nil || s.LastMessage.ID != ev.Message.ID {
			return
		}
		s.LastMessage = domain.PreviewOf(ev.Message, l.viewerID)
		l.summaries[counterpartID] = s

	case domain.EventMessageDeleted:
		s, ok := l.summaries[counterpartID]
		if !ok {
			return
		}
		s.UnreadCount += ev.UnreadDelta
		if s.UnreadCount < 0 {
			s.UnreadCount = 0
		}
		if s.LastMessage != nil && s.LastMessage.ID == ev.MessageID {
			// the preview is gone; only a refetch knows what came before
			s.LastMessage = nil
			l.stale[counterpartID] = true
		}
		l.summaries[counterpartID] = s

	case domain.EventMessageRead:
		if ev.UnreadDelta == 0 {
			return
		}
		s, ok := l.summaries[counterpartID]
		if !ok {
			return
		}
		s.UnreadCount += ev.UnreadDelta
		if s.UnreadCount < 0 {
			s.UnreadCount = 0
		}
		l.summaries[counterpartID] = s

	case domain.EventMessagesRead:
		if ev.ReaderID != l.viewerID {
			return
		}
		s, ok := l.summaries[counterpartID]
		if !ok {
			return
		}
		s.UnreadCount = 0
		l.summaries[counterpartID] = s
	}
}

// Stale lists the counterparts whose preview needs a durable refetch.
func (l *ConversationListState) Stale() []string {
	out := make([]string, 0, len(l.stale))
	for id := range l.stale {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// List returns the summaries ordered by last activity, newest first.
// Conversations without a preview sink to the end.
func (l *ConversationListState) List() []domain.ConversationSummary {
	out := make([]domain.ConversationSummary, 0, len(l.summaries))
	for _, s := range l.summaries {
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastMessage, out[j].LastMessage
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out
}

// Unread returns the viewer's unread count for one counterpart.
func (l *ConversationListState) Unread(counterpartID string) int64 {
	if s, ok := l.summaries[counterpartID]; ok {
		return s.UnreadCount
	}
	return 0
}
