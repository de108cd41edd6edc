package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"msgrelay/internal/domain"
)

// Registry is the concurrent routing table address -> session handle.
// Register-and-displace is one atomic operation under the lock, and
// presence events are emitted under the same lock so events for a single
// address are totally ordered.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.Address]domain.Session

	presence *Broadcaster
	log      zerolog.Logger
	now      func() time.Time
}

// New returns an empty registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[domain.Address]domain.Session),
		presence: NewBroadcaster(),
		log:      log.With().Str("component", "registry").Logger(),
		now:      time.Now,
	}
}

// Register inserts s as the session for addr and returns the handle it
// displaced, or nil. The caller must signal the displaced handle to
// close. A displacement is published as a single online event: the
// address never went observably offline.
func (r *Registry) Register(addr domain.Address, s domain.Session) domain.Session {
	r.mu.Lock()
	displaced := r.sessions[addr]
	r.sessions[addr] = s
	r.presence.Publish(domain.PresenceEvent{Address: addr, Online: true, At: r.now()})
	r.mu.Unlock()

	if displaced != nil {
		r.log.Info().Str("address", addr.String()).Msg("session displaced by new registration")
	}
	return displaced
}

// Unregister removes addr only if the current entry is exactly s. It
// reports whether an entry was removed; a false return means a newer
// session already took the slot and the registry is unchanged.
func (r *Registry) Unregister(addr domain.Address, s domain.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[addr]
	if !ok || cur != s {
		return false
	}
	delete(r.sessions, addr)
	r.presence.Publish(domain.PresenceEvent{Address: addr, Online: false, At: r.now()})
	return true
}

// Lookup returns the session for addr, if any.
func (r *Registry) Lookup(addr domain.Address) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[addr]
	return s, ok
}

// Online reports whether addr has a registered session.
func (r *Registry) Online(addr domain.Address) bool {
	_, ok := r.Lookup(addr)
	return ok
}

// OnlineAddresses returns a snapshot of every registered address.
func (r *Registry) OnlineAddresses() []domain.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Address, 0, len(r.sessions))
	for addr := range r.sessions {
		out = append(out, addr)
	}
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Presence returns the presence event broadcaster.
func (r *Registry) Presence() *Broadcaster {
	return r.presence
}
