package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"msgrelay/internal/domain"
	"msgrelay/internal/metrics"
	"msgrelay/internal/protocol"
	"msgrelay/internal/registry"
)

// Manager upgrades WebSocket connections and owns every live session.
type Manager struct {
	cfg      Config
	registry *registry.Registry
	queue    domain.MessageQueue
	metrics  *metrics.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	live    map[*Session]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewManager wires a manager over the registry and offline queue.
// checkOrigin guards the WebSocket upgrade; nil allows any origin.
func NewManager(
	cfg Config,
	reg *registry.Registry,
	q domain.MessageQueue,
	m *metrics.Metrics,
	log zerolog.Logger,
	checkOrigin func(*http.Request) bool,
) *Manager {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Manager{
		cfg:      cfg.withDefaults(),
		registry: reg,
		queue:    q,
		metrics:  m,
		log:      log.With().Str("component", "session").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		live: make(map[*Session]struct{}),
	}
}

// ServeHTTP upgrades the request and starts the session goroutines.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	m.mu.Unlock()

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		m.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}
	conn.SetReadLimit(protocol.MaxFrameLen)

	s := newSession(m, conn)
	m.track(s)

	go s.writePump()
	go s.readPump()
}

// Shutdown stops accepting new connections, signals every session to
// close, and waits for teardown until ctx expires.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	m.closing = true
	sessions := make([]*Session, 0, len(m.live))
	for s := range m.live {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.SignalClose()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn().Msg("shutdown deadline reached with sessions still open")
	}
}

func (m *Manager) track(s *Session) {
	m.mu.Lock()
	m.live[s] = struct{}{}
	m.mu.Unlock()
	m.wg.Add(1)
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	_, ok := m.live[s]
	delete(m.live, s)
	m.mu.Unlock()
	if ok {
		m.wg.Done()
	}
}
