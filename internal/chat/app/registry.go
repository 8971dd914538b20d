package app

import (
	"sync"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// Conn is the minimal surface the registry needs from a live connection, so
// tests can hand in fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type registryEntry struct {
	conn Conn
	out  chan domain.WSEvent
	done chan struct{}
}

// Registry maps a user id to its single active connection. One user, one
// entry; a second attach closes and replaces the first. Delivery is
// best-effort and never blocks the caller.
type Registry struct {
	mu         sync.RWMutex
	clients    map[string]*registryEntry
	sendBuffer int
}

// NewRegistry create a connection registry; sendBuffer sizes each user's
// outbound queue.
func NewRegistry(sendBuffer int) *Registry {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Registry{
		clients:    make(map[string]*registryEntry),
		sendBuffer: sendBuffer,
	}
}

// Attach registers conn as the user's active connection and starts its writer.
// An existing connection for the same user is closed and replaced; the newer
// connection always wins.
func (r *Registry) Attach(userID string, conn Conn) {
	e := &registryEntry{
		conn: conn,
		out:  make(chan domain.WSEvent, r.sendBuffer),
		done: make(chan struct{}),
	}

	r.mu.Lock()
	if old, ok := r.clients[userID]; ok {
		close(old.done)
		old.conn.Close()
		logger.Log.Info("replacing live connection", zap.String("userID", userID))
	}
	r.clients[userID] = e
	r.mu.Unlock()

	go r.writePump(userID, e)
}

// Detach removes conn if it is still the user's active connection. A stale
// detach after a replacing attach is a no-op. Returns whether it removed.
func (r *Registry) Detach(userID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.clients[userID]
	if !ok || e.conn != conn {
		return false
	}
	delete(r.clients, userID)
	close(e.done)
	return true
}

// Send enqueues an event for the user's connection. It returns false when the
// user is offline or the queue is full; the durable log remains the recovery
// path, so a miss is silent.
func (r *Registry) Send(userID string, ev domain.WSEvent) bool {
	r.mu.RLock()
	e, ok := r.clients[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case <-e.done:
		return false
	case e.out <- ev:
		return true
	default:
		logger.Log.Warn("dropping event for slow consumer",
			zap.String("userID", userID), zap.String("event", ev.Event))
		return false
	}
}

// IsOnline reports whether the user has an active connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[userID]
	return ok
}

// writePump is the single writer for one connection; events drain in FIFO
// order, so recipients observe commit order.
func (r *Registry) writePump(userID string, e *registryEntry) {
	for {
		select {
		case <-e.done:
			return
		case ev := <-e.out:
			if err := e.conn.WriteJSON(ev); err != nil {
				logger.Log.Errorf("write event error:", err)
				r.Detach(userID, e.conn)
				return
			}
		}
	}
}
