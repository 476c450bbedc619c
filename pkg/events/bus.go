// Package events fans out the scheduler's job lifecycle signals
// (spec.md §6: job_started, user_job_canceled, attempt_failed, job_failed,
// job_finished, progress_job_detail, server_modified) to any number of
// subscribers. Grounded on the teacher's WebSocketHub register/unregister/
// broadcast loop (pkg/api/websocket.go), generalized from a single
// WebSocket-specific client type to a plain Go channel per subscriber so
// both the HTTP/WebSocket layer and in-process callers (tests,
// cmd/example) can listen the same way.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind names one of the signals spec.md §6 defines.
type Kind string

const (
	KindJobStarted        Kind = "job_started"
	KindUserJobCanceled    Kind = "user_job_canceled"
	KindAttemptFailed      Kind = "attempt_failed"
	KindJobFailed          Kind = "job_failed"
	KindJobFinished        Kind = "job_finished"
	KindProgressJobDetail  Kind = "progress_job_detail"
	KindServerModified     Kind = "server_modified"
)

// Event is one signal instance, carrying whatever payload is appropriate
// to its Kind (a *responseset.Detail for job signals, a connection name
// string for server_modified).
type Event struct {
	Kind      Kind
	Payload   any
	Timestamp time.Time
}

// Bus is a fan-out hub: any number of subscribers, each with its own
// buffered channel, a slow subscriber drops events rather than blocking
// the publisher (spec.md §6 "signals are delivered best-effort").
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBus creates an empty event Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe func. The channel is buffered; callers should drain it
// promptly.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish broadcasts ev to every current subscriber, dropping it for any
// subscriber whose buffer is full.
func (b *Bus) Publish(kind Kind, payload any) {
	ev := Event{Kind: kind, Payload: payload, Timestamp: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("kind", string(kind)).Msg("events: subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount reports how many listeners are currently registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
