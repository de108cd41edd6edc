package session

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"msgrelay/internal/domain"
	"msgrelay/internal/protocol"
)

// maxParseErrors is how many consecutive unparseable frames a session
// may send before it is disconnected.
const maxParseErrors = 5

// Session drives one client connection. Only the read goroutine mutates
// addr and authed; other goroutines reach the session exclusively
// through the mailbox and the closing channel.
type Session struct {
	mgr  *Manager
	conn *websocket.Conn
	log  zerolog.Logger

	addr   domain.Address
	authed bool

	mailbox   chan any
	closing   chan struct{}
	closeOnce sync.Once

	parseErrors int
}

func newSession(m *Manager, conn *websocket.Conn) *Session {
	return &Session{
		mgr:     m,
		conn:    conn,
		log:     m.log.With().Str("remote", conn.RemoteAddr().String()).Logger(),
		mailbox: make(chan any, m.cfg.MailboxCapacity),
		closing: make(chan struct{}),
	}
}

// Address returns the address this session authenticated as.
func (s *Session) Address() domain.Address { return s.addr }

// SignalClose asks the session to tear down. Used on displacement and
// process shutdown; also invoked internally on every failure path.
func (s *Session) SignalClose() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Deliver posts a live message frame, waiting up to the mailbox send
// timeout. False means congested or closing; the caller queues instead.
func (s *Session) Deliver(env domain.Envelope) bool {
	timer := time.NewTimer(s.mgr.cfg.MailboxSendTimeout)
	defer timer.Stop()
	select {
	case s.mailbox <- protocol.NewMessage(env, false):
		return true
	case <-s.closing:
		return false
	case <-timer.C:
		return false
	}
}

// NotifyTyping posts a typing indicator without blocking.
func (s *Session) NotifyTyping(from domain.Address, isTyping bool) bool {
	return s.tryPost(protocol.NewTyping(from, isTyping))
}

// NotifyRead posts a read receipt without blocking.
func (s *Session) NotifyRead(from domain.Address, messageID string, ts int64) bool {
	return s.tryPost(protocol.NewRead(from, messageID, ts))
}

// post queues a frame for the session's own client. It blocks until the
// write goroutine makes room, which stops the read loop and lets TCP
// backpressure reach a client that is not keeping up.
func (s *Session) post(frame any) bool {
	select {
	case s.mailbox <- frame:
		return true
	case <-s.closing:
		return false
	}
}

func (s *Session) tryPost(frame any) bool {
	select {
	case s.mailbox <- frame:
		return true
	case <-s.closing:
		return false
	default:
		return false
	}
}

// readPump is the session's owning loop: auth, dispatch, idle tracking.
func (s *Session) readPump() {
	defer s.teardown()

	_ = s.conn.SetReadDeadline(time.Now().Add(s.mgr.cfg.AuthTimeout))

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.closeWithReason("read: " + closeReason(err))
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.idleWindow()))
		s.mgr.metrics.FrameReceived()

		frame, err := protocol.ParseClientFrame(data)
		if err != nil {
			s.mgr.metrics.FrameRejected()
			if !s.authed {
				s.post(protocol.NewError("malformed frame"))
				s.closeWithReason("malformed frame before auth")
				return
			}
			s.parseErrors++
			s.post(protocol.NewError("malformed frame"))
			if s.parseErrors >= maxParseErrors {
				s.closeWithReason("too many malformed frames")
				return
			}
			continue
		}
		s.parseErrors = 0

		if !s.dispatch(frame) {
			return
		}
	}
}

// idleWindow returns the read deadline window for the current state.
func (s *Session) idleWindow() time.Duration {
	if !s.authed {
		return s.mgr.cfg.AuthTimeout
	}
	return s.mgr.cfg.IdleTimeout
}

// dispatch handles one parsed frame. A false return ends the session.
func (s *Session) dispatch(f protocol.ClientFrame) bool {
	if !s.authed {
		return s.handleAuth(f)
	}

	switch f.Type {
	case protocol.TypeAuth:
		// Protocol violation: one auth per session.
		s.post(protocol.NewError("already authenticated"))
		s.closeWithReason("second auth frame")
		return false
	case protocol.TypeMessage:
		s.handleMessage(f)
	case protocol.TypeTyping:
		s.handleTyping(f)
	case protocol.TypeReadReceipt:
		s.handleReadReceipt(f)
	case protocol.TypePing:
		s.post(protocol.NewPong(nowMillis()))
	default:
		s.log.Debug().Str("type", f.Type).Msg("ignoring unknown frame type")
	}
	return true
}

// handleAuth validates the first frame, registers the session, and
// drains the offline queue before anything else can reach the client.
func (s *Session) handleAuth(f protocol.ClientFrame) bool {
	if f.Type != protocol.TypeAuth {
		s.post(protocol.NewError("authentication required"))
		s.closeWithReason("first frame was not auth")
		return false
	}
	addr, err := protocol.ValidateAuth(f)
	if err != nil {
		s.mgr.metrics.FrameRejected()
		s.post(protocol.NewError("invalid address"))
		s.closeWithReason("invalid auth address")
		return false
	}

	s.addr = addr
	s.authed = true
	s.log = s.log.With().Str("address", addr.String()).Logger()
	s.mgr.metrics.ConnectionOpened()

	s.post(protocol.NewAuthSuccess(addr, nowMillis()))

	if displaced := s.mgr.registry.Register(addr, s); displaced != nil {
		displaced.SignalClose()
	}

	// Queued envelopes go out first, in enqueue order. Posts block so a
	// long backlog is paced by the client's own consumption.
	drained := s.mgr.queue.Drain(addr)
	for _, env := range drained {
		if !s.post(protocol.NewMessage(env, true)) {
			return false
		}
	}

	s.log.Info().Int("drained", len(drained)).Msg("session authenticated")
	return true
}

func (s *Session) handleMessage(f protocol.ClientFrame) {
	env, err := protocol.ValidateMessage(f, s.addr)
	if err != nil {
		s.mgr.metrics.FrameRejected()
		s.post(protocol.NewError(validationReason(err)))
		return
	}

	if recipient, ok := s.mgr.registry.Lookup(env.To); ok {
		if recipient.Deliver(env) {
			s.mgr.metrics.MessageDelivered()
			s.post(protocol.NewDelivered(env.MessageID, env.To, nowMillis()))
			return
		}
		// Recipient mailbox congested: offline for this message.
		s.log.Debug().Str("to", env.To.String()).Msg("recipient congested, queueing")
	}

	evicted := s.mgr.queue.Enqueue(env)
	s.mgr.metrics.MessagesEvicted(evicted)
	s.mgr.metrics.MessageQueued()
	s.post(protocol.NewQueued(env.MessageID, env.To, nowMillis()))
}

func (s *Session) handleTyping(f protocol.ClientFrame) {
	to, err := protocol.ValidateTyping(f)
	if err != nil {
		return // best effort, drop silently
	}
	if recipient, ok := s.mgr.registry.Lookup(to); ok {
		recipient.NotifyTyping(s.addr, f.IsTyping)
	}
}

func (s *Session) handleReadReceipt(f protocol.ClientFrame) {
	to, err := protocol.ValidateReadReceipt(f)
	if err != nil {
		return // best effort, drop silently
	}
	if recipient, ok := s.mgr.registry.Lookup(to); ok {
		recipient.NotifyRead(s.addr, f.MessageID, nowMillis())
	}
}

// writePump is the sole socket writer. It drains the mailbox until the
// session starts closing, then flushes within the drain deadline and
// closes the connection.
func (s *Session) writePump() {
	defer s.conn.Close()

	for {
		select {
		case frame := <-s.mailbox:
			if !s.write(frame) {
				s.SignalClose()
				return
			}
		case <-s.closing:
			s.flush()
			deadline := time.Now().Add(s.mgr.cfg.WriteTimeout)
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

// flush writes whatever is already in the mailbox, bounded by the drain
// deadline.
func (s *Session) flush() {
	deadline := time.Now().Add(s.mgr.cfg.DrainDeadline)
	for time.Now().Before(deadline) {
		select {
		case frame := <-s.mailbox:
			if !s.write(frame) {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(frame any) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.mgr.cfg.WriteTimeout))
	if err := s.conn.WriteJSON(frame); err != nil {
		s.log.Debug().Err(err).Msg("write failed")
		return false
	}
	return true
}

// teardown runs once, when the read loop exits: deregister, close the
// writer, release tracking.
func (s *Session) teardown() {
	s.SignalClose()
	if s.authed {
		s.mgr.registry.Unregister(s.addr, s)
		s.mgr.metrics.ConnectionClosed()
	}
	s.mgr.forget(s)
	s.log.Info().Msg("session closed")
}

func (s *Session) closeWithReason(reason string) {
	s.log.Debug().Str("reason", reason).Msg("closing session")
	s.SignalClose()
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// validationReason maps a validation error to the short form sent to the
// client; internal detail never crosses the wire.
func validationReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		return "invalid recipient address"
	case errors.Is(err, protocol.ErrBadMessageID):
		return "invalid messageId"
	case errors.Is(err, protocol.ErrBadContent):
		return "invalid content"
	case errors.Is(err, protocol.ErrBadTimestamp):
		return "invalid timestamp"
	default:
		return "invalid frame"
	}
}

// closeReason trims a transport error to something loggable.
func closeReason(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return "client closed connection"
	}
	return err.Error()
}

var _ domain.Session = (*Session)(nil)
