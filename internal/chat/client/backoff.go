package client

import (
	"time"

	"marketplace_chat_service/internal/chat/domain"
)

// Backoff is the reconnect policy of the live channel: capped exponential
// delays, a bounded attempt budget, and a terminal offline state once the
// budget is spent. Client-initiated closes never reconnect.
type Backoff struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int

	attempt int
	offline bool
}

// NewBackoff create a reconnect policy; attempts <= 0 means unbounded.
func NewBackoff(base, max time.Duration, attempts int) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max, maxAttempts: attempts}
}

// OnDisconnect reports whether the client should start reconnecting after a
// disconnect with the given reason.
func (b *Backoff) OnDisconnect(reason domain.DisconnectReason) bool {
	if !reason.ShouldReconnect() {
		return false
	}
	return !b.offline
}

// Next returns the delay before the next attempt. ok is false once the
// attempt budget is exhausted; the session is then terminally offline and
// only an explicit Reset revives it.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	if b.offline {
		return 0, false
	}
	if b.maxAttempts > 0 && b.attempt >= b.maxAttempts {
		b.offline = true
		return 0, false
	}

	delay = b.base << b.attempt
	if delay > b.max || delay < b.base {
		delay = b.max
	}
	b.attempt++
	return delay, true
}

// Reset clears the attempt counter after a successful reconnect. The client
// re-seeds thread and list state from the durable surface afterwards.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.offline = false
}

// Offline reports whether the session gave up reconnecting.
func (b *Backoff) Offline() bool { return b.offline }
