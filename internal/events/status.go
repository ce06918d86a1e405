// Package events fans readiness snapshots out to in-process subscribers
// and optionally onto a message broker. Broadcasters are plain dependencies
// handed to consumers at construction, there is no package-level instance.
package events

import (
	"sync"

	"github.com/vadiminshakov/tradeready/internal/domain"
)

// StatusBroadcaster fans out status snapshots to all subscribers via
// buffered channels. Slow consumers are dropped rather than allowed to
// stall the synchronizer.
type StatusBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.StatusSnapshot]struct{}
	buffer int
}

// NewStatusBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewStatusBroadcaster(buffer int) *StatusBroadcaster {
	if buffer < 1 {
		buffer = 64
	}

	return &StatusBroadcaster{
		subs:   make(map[chan domain.StatusSnapshot]struct{}),
		buffer: buffer,
	}
}

// Publish sends the snapshot to all subscribers, dropping if a reader is slow.
func (b *StatusBroadcaster) Publish(snapshot domain.StatusSnapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- snapshot:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives snapshots until Unsubscribe is called.
func (b *StatusBroadcaster) Subscribe() chan domain.StatusSnapshot {
	ch := make(chan domain.StatusSnapshot, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *StatusBroadcaster) Unsubscribe(ch chan domain.StatusSnapshot) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
