// Package broadcast fans out full-snapshot change notifications to every
// connected subscriber (SSE streams, websockets). Broadcast, not per-client
// diffs: simplicity over bandwidth.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cluekeeper/cluekeeper/internal/game"
)

// Broadcaster distributes snapshots to subscriber channels. A subscriber
// that cannot keep up is dropped rather than allowed to block the rest.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan []game.Record
}

func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]chan []game.Record),
	}
}

// Subscribe registers a new subscriber and returns its id and channel. The
// channel is buffered so a momentarily slow reader survives one burst.
func (b *Broadcaster) Subscribe() (string, <-chan []game.Record) {
	id := uuid.NewString()
	ch := make(chan []game.Record, 8)

	b.mu.Lock()
	b.subscribers[id] = ch
	count := len(b.subscribers)
	b.mu.Unlock()

	log.Debug().Str("subscriber", id).Int("total", count).Msg("broadcast subscriber added")
	return id, ch
}

// Unsubscribe removes and closes the subscriber's channel. Safe to call for
// an id that was already dropped.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	count := len(b.subscribers)
	b.mu.Unlock()

	if ok {
		log.Debug().Str("subscriber", id).Int("total", count).Msg("broadcast subscriber removed")
	}
}

// Publish delivers the snapshot to every subscriber without blocking.
// Subscribers with a full channel are disconnected; they will re-sync when
// they reconnect.
func (b *Broadcaster) Publish(snapshot []game.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- snapshot:
		default:
			delete(b.subscribers, id)
			close(ch)
			log.Warn().Str("subscriber", id).Msg("dropping slow broadcast subscriber")
		}
	}
}

// Count returns the number of connected subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
