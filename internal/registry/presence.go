package registry

import (
	"sync"

	"msgrelay/internal/domain"
)

// DefaultSubscriberBuffer is the per-subscriber channel depth used when
// Subscribe is called with a non-positive buffer.
const DefaultSubscriberBuffer = 16

// Broadcaster fans presence events out to subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the event. Presence
// is a live signal, not a journal; a slow consumer must not stall the
// registry.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan domain.PresenceEvent
	next int
}

// NewBroadcaster returns a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan domain.PresenceEvent)}
}

// Subscribe registers a new subscriber and returns its event channel
// with a cancel function. Cancel closes the channel; it is safe to call
// more than once.
func (b *Broadcaster) Subscribe(buffer int) (<-chan domain.PresenceEvent, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan domain.PresenceEvent, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber that has room.
func (b *Broadcaster) Publish(ev domain.PresenceEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
