package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"msgrelay/internal/domain"
)

// Defaults used when an option is not configured.
const (
	DefaultMaxPerUser    = 1000
	DefaultRetention     = 168 * time.Hour
	DefaultPurgeInterval = time.Hour
)

type entry struct {
	env        domain.Envelope
	enqueuedAt time.Time
}

// Queue holds per-recipient FIFOs keyed by canonical address. One mutex
// serializes enqueue, drain and size observations; every operation is a
// short map-and-slice manipulation, so finer sharding buys nothing here.
type Queue struct {
	mu      sync.Mutex
	pending map[domain.Address][]entry

	maxPerUser    int
	retention     time.Duration
	purgeInterval time.Duration
	log           zerolog.Logger

	now       func() time.Time
	onExpired func(n int)
}

// New returns an empty queue. Zero or negative options select the
// defaults.
func New(maxPerUser int, retention, purgeInterval time.Duration, log zerolog.Logger) *Queue {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxPerUser
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if purgeInterval <= 0 {
		purgeInterval = DefaultPurgeInterval
	}
	return &Queue{
		pending:       make(map[domain.Address][]entry),
		maxPerUser:    maxPerUser,
		retention:     retention,
		purgeInterval: purgeInterval,
		log:           log.With().Str("component", "queue").Logger(),
		now:           time.Now,
	}
}

// Enqueue appends env to the recipient's FIFO. When the FIFO is at
// capacity, expired entries are purged first and then, if still full,
// the oldest entry is dropped. The incoming envelope is always kept.
// Returns the number of entries evicted to make room.
func (q *Queue) Enqueue(env domain.Envelope) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	list := q.pending[env.To]
	evicted := 0

	if len(list) >= q.maxPerUser {
		list, evicted = q.dropExpired(list, now)
		for len(list) >= q.maxPerUser {
			list = list[1:]
			evicted++
		}
	}
	if evicted > 0 {
		q.log.Debug().
			Str("to", env.To.String()).
			Int("evicted", evicted).
			Msg("queue at capacity, evicted oldest entries")
	}

	q.pending[env.To] = append(list, entry{env: env, enqueuedAt: now})
	return evicted
}

// OnExpired registers fn to be called with the number of entries each
// expiry discard removes. Set it before the queue is shared; fn must not
// call back into the queue.
func (q *Queue) OnExpired(fn func(n int)) {
	q.onExpired = fn
}

// Drain atomically removes and returns all non-expired entries for addr,
// oldest first. Expired entries are discarded without being returned.
func (q *Queue) Drain(addr domain.Address) []domain.Envelope {
	q.mu.Lock()
	list, ok := q.pending[addr]
	if !ok {
		q.mu.Unlock()
		return nil
	}
	delete(q.pending, addr)

	now := q.now()
	out := make([]domain.Envelope, 0, len(list))
	for _, e := range list {
		if q.expired(e, now) {
			continue
		}
		out = append(out, e.env)
	}
	q.mu.Unlock()

	q.notifyExpired(len(list) - len(out))
	return out
}

// Peek returns a copy of the non-expired entries for addr without
// removing them, oldest first.
func (q *Queue) Peek(addr domain.Address) []domain.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := q.pending[addr]
	now := q.now()
	out := make([]domain.Envelope, 0, len(list))
	for _, e := range list {
		if q.expired(e, now) {
			continue
		}
		out = append(out, e.env)
	}
	return out
}

// Size returns the current non-expired count for addr.
func (q *Queue) Size(addr domain.Address) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	n := 0
	for _, e := range q.pending[addr] {
		if !q.expired(e, now) {
			n++
		}
	}
	return n
}

// Clear removes every entry for addr. Idempotent.
func (q *Queue) Clear(addr domain.Address) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, addr)
}

// PurgeExpired sweeps all addresses, removing entries at or beyond the
// retention age. Returns the number of entries removed.
func (q *Queue) PurgeExpired() int {
	q.mu.Lock()
	now := q.now()
	removed := 0
	for addr, list := range q.pending {
		kept, dropped := q.dropExpired(list, now)
		removed += dropped
		if len(kept) == 0 {
			delete(q.pending, addr)
			continue
		}
		q.pending[addr] = kept
	}
	q.mu.Unlock()

	q.notifyExpired(removed)
	return removed
}

// Stats returns an aggregate snapshot. Counts may conservatively include
// entries that expired since the last purge.
func (q *Queue) Stats() domain.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := domain.QueueStats{Addresses: len(q.pending)}
	for _, list := range q.pending {
		s.Messages += len(list)
	}
	return s
}

// Run purges expired entries on a ticker until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := q.PurgeExpired(); removed > 0 {
				q.log.Info().Int("removed", removed).Msg("purged expired messages")
			}
		}
	}
}

// dropExpired returns list without its expired entries and how many were
// dropped. Caller holds q.mu.
func (q *Queue) dropExpired(list []entry, now time.Time) ([]entry, int) {
	kept := list[:0]
	for _, e := range list {
		if q.expired(e, now) {
			continue
		}
		kept = append(kept, e)
	}
	return kept, len(list) - len(kept)
}

func (q *Queue) expired(e entry, now time.Time) bool {
	return now.Sub(e.enqueuedAt) >= q.retention
}

func (q *Queue) notifyExpired(n int) {
	if n > 0 && q.onExpired != nil {
		q.onExpired(n)
	}
}

var _ domain.MessageQueue = (*Queue)(nil)
