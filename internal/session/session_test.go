package session_test

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"msgrelay/internal/domain"
	"msgrelay/internal/metrics"
	"msgrelay/internal/protocol"
	"msgrelay/internal/queue"
	"msgrelay/internal/registry"
	"msgrelay/internal/session"
)

func addr(hex string) domain.Address {
	return domain.Address("0x" + strings.Repeat(hex, 20))
}

// relay bundles a running manager with its collaborators for tests.
type relay struct {
	srv *httptest.Server
	reg *registry.Registry
	q   *queue.Queue
}

func newRelay(t *testing.T) *relay {
	return newRelayCfg(t, session.Config{
		AuthTimeout:        2 * time.Second,
		IdleTimeout:        2 * time.Second,
		WriteTimeout:       2 * time.Second,
		MailboxCapacity:    16,
		MailboxSendTimeout: 50 * time.Millisecond,
		DrainDeadline:      time.Second,
	})
}

func newRelayCfg(t *testing.T, cfg session.Config) *relay {
	t.Helper()

	log := zerolog.Nop()
	q := queue.New(0, 0, time.Hour, log)
	reg := registry.New(log)
	m := metrics.New(prometheus.NewRegistry(), func() float64 { return float64(q.Stats().Messages) })

	mgr := session.NewManager(cfg, reg, q, m, log, nil)

	srv := httptest.NewServer(mgr)
	t.Cleanup(srv.Close)
	return &relay{srv: srv, reg: reg, q: q}
}

// client is a thin WebSocket test client over the relay's wire protocol.
type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (r *relay) dial(t *testing.T) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(frame any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(frame))
}

func (c *client) sendRaw(data string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

// recv reads one frame and returns its fields as a generic map.
func (c *client) recv() map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)

	var frame map[string]any
	require.NoError(c.t, json.Unmarshal(data, &frame))
	return frame
}

// expect reads one frame and asserts its type.
func (c *client) expect(typ string) map[string]any {
	c.t.Helper()
	frame := c.recv()
	require.Equal(c.t, typ, frame["type"], "frame: %v", frame)
	return frame
}

// expectClosed asserts the server closed the connection.
func (c *client) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
	}
}

func (c *client) auth(a domain.Address) {
	c.t.Helper()
	c.send(protocol.ClientFrame{Type: protocol.TypeAuth, Address: a.String()})
	frame := c.expect(protocol.TypeAuthSuccess)
	require.Equal(c.t, a.String(), frame["address"])
}

func msgFrame(to domain.Address, id, content string) protocol.ClientFrame {
	return protocol.ClientFrame{
		Type:      protocol.TypeMessage,
		To:        to.String(),
		MessageID: id,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

func TestLiveDelivery(t *testing.T) {
	r := newRelay(t)

	alice := r.dial(t)
	alice.auth(addr("aa"))
	bob := r.dial(t)
	bob.auth(addr("bb"))

	alice.send(msgFrame(addr("bb"), "m-1", "Y2lwaGVydGV4dA=="))

	got := bob.expect(protocol.TypeMessage)
	require.Equal(t, addr("aa").String(), got["from"])
	require.Equal(t, "m-1", got["messageId"])
	require.Equal(t, "Y2lwaGVydGV4dA==", got["content"])
	require.Equal(t, false, got["queued"])

	ack := alice.expect(protocol.TypeDelivered)
	require.Equal(t, "m-1", ack["messageId"])
	require.Equal(t, addr("bb").String(), ack["to"])
}

func TestOfflineQueueingAndDrain(t *testing.T) {
	r := newRelay(t)

	alice := r.dial(t)
	alice.auth(addr("aa"))

	// Carol is offline: both messages are queued.
	alice.send(msgFrame(addr("cc"), "m-1", "Zmlyc3Q="))
	ack := alice.expect(protocol.TypeQueued)
	require.Equal(t, "m-1", ack["messageId"])

	alice.send(msgFrame(addr("cc"), "m-2", "c2Vjb25k"))
	alice.expect(protocol.TypeQueued)

	require.Equal(t, 2, r.q.Size(addr("cc")))

	// Carol connects: the backlog is replayed in order, flagged queued.
	carol := r.dial(t)
	carol.auth(addr("cc"))

	first := carol.expect(protocol.TypeMessage)
	require.Equal(t, "m-1", first["messageId"])
	require.Equal(t, true, first["queued"])

	second := carol.expect(protocol.TypeMessage)
	require.Equal(t, "m-2", second["messageId"])
	require.Equal(t, true, second["queued"])

	require.Equal(t, 0, r.q.Size(addr("cc")))
}

func TestDisplacement(t *testing.T) {
	r := newRelay(t)

	first := r.dial(t)
	first.auth(addr("bb"))

	// A second session for the same address displaces the first.
	second := r.dial(t)
	second.auth(addr("bb"))

	first.expectClosed()

	// Traffic now reaches the new session only.
	alice := r.dial(t)
	alice.auth(addr("aa"))
	alice.send(msgFrame(addr("bb"), "m-1", "aGk="))

	got := second.expect(protocol.TypeMessage)
	require.Equal(t, "m-1", got["messageId"])
}

func TestTypingAndReadReceipt(t *testing.T) {
	r := newRelay(t)

	alice := r.dial(t)
	alice.auth(addr("aa"))
	bob := r.dial(t)
	bob.auth(addr("bb"))

	alice.send(protocol.ClientFrame{Type: protocol.TypeTyping, To: addr("bb").String(), IsTyping: true})
	typing := bob.expect(protocol.TypeTyping)
	require.Equal(t, addr("aa").String(), typing["from"])
	require.Equal(t, true, typing["isTyping"])

	bob.send(protocol.ClientFrame{Type: protocol.TypeReadReceipt, To: addr("aa").String(), MessageID: "m-1"})
	read := alice.expect(protocol.TypeRead)
	require.Equal(t, addr("bb").String(), read["from"])
	require.Equal(t, "m-1", read["messageId"])
}

func TestTyping_ToOfflineRecipientIsDropped(t *testing.T) {
	r := newRelay(t)

	alice := r.dial(t)
	alice.auth(addr("aa"))
	alice.send(protocol.ClientFrame{Type: protocol.TypeTyping, To: addr("cc").String(), IsTyping: true})

	// Still responsive, and nothing was queued for carol.
	alice.send(protocol.ClientFrame{Type: protocol.TypePing})
	alice.expect(protocol.TypePong)
	require.Equal(t, 0, r.q.Size(addr("cc")))
}

func TestPingPong(t *testing.T) {
	r := newRelay(t)

	c := r.dial(t)
	c.auth(addr("aa"))

	c.send(protocol.ClientFrame{Type: protocol.TypePing})
	pong := c.expect(protocol.TypePong)
	require.NotZero(t, pong["timestamp"])
}

func TestFirstFrameMustBeAuth(t *testing.T) {
	r := newRelay(t)

	c := r.dial(t)
	c.send(msgFrame(addr("bb"), "m-1", "aGk="))

	errFrame := c.expect(protocol.TypeError)
	require.Contains(t, errFrame["message"], "authentication")
	c.expectClosed()
}

func TestAuth_InvalidAddress(t *testing.T) {
	r := newRelay(t)

	c := r.dial(t)
	c.send(protocol.ClientFrame{Type: protocol.TypeAuth, Address: "0x123"})

	errFrame := c.expect(protocol.TypeError)
	require.Contains(t, errFrame["message"], "invalid address")
	c.expectClosed()
}

func TestSecondAuthClosesSession(t *testing.T) {
	r := newRelay(t)

	c := r.dial(t)
	c.auth(addr("aa"))
	c.send(protocol.ClientFrame{Type: protocol.TypeAuth, Address: addr("aa").String()})

	errFrame := c.expect(protocol.TypeError)
	require.Contains(t, errFrame["message"], "already authenticated")
	c.expectClosed()
}

func TestMalformedFrame_BeforeAuthDisconnects(t *testing.T) {
	r := newRelay(t)

	c := r.dial(t)
	c.sendRaw("not json")

	c.expect(protocol.TypeError)
	c.expectClosed()
}

func TestMalformedFrames_ToleratedAfterAuthUpToLimit(t *testing.T) {
	r := newRelay(t)

	c := r.dial(t)
	c.auth(addr("aa"))

	// A few malformed frames draw errors but keep the session alive.
	for i := 0; i < 3; i++ {
		c.sendRaw("{broken")
		c.expect(protocol.TypeError)
	}
	c.send(protocol.ClientFrame{Type: protocol.TypePing})
	c.expect(protocol.TypePong)
}

func TestInvalidRecipient_ErrorWithoutDisconnect(t *testing.T) {
	r := newRelay(t)

	c := r.dial(t)
	c.auth(addr("aa"))

	c.send(protocol.ClientFrame{Type: protocol.TypeMessage, To: "bob", MessageID: "m-1", Content: "aGk="})
	errFrame := c.expect(protocol.TypeError)
	require.Contains(t, errFrame["message"], "invalid recipient")

	c.send(protocol.ClientFrame{Type: protocol.TypePing})
	c.expect(protocol.TypePong)
}

func TestUnknownFrameType_Ignored(t *testing.T) {
	r := newRelay(t)

	c := r.dial(t)
	c.auth(addr("aa"))

	c.sendRaw(`{"type":"presence"}`)
	c.send(protocol.ClientFrame{Type: protocol.TypePing})
	c.expect(protocol.TypePong)
}

func TestAuthTimeout(t *testing.T) {
	r := newRelayCfg(t, session.Config{AuthTimeout: 300 * time.Millisecond})

	c := r.dial(t)
	// No auth frame: the server closes the connection on its own.
	c.expectClosed()
	require.False(t, r.reg.Online(addr("aa")))
}

func TestIdleTimeout_ResetByAnyFrame(t *testing.T) {
	r := newRelayCfg(t, session.Config{
		AuthTimeout: 2 * time.Second,
		IdleTimeout: 500 * time.Millisecond,
	})

	c := r.dial(t)
	c.auth(addr("aa"))

	// Two pings, each inside the window but together past it: each frame
	// resets the idle deadline.
	for i := 0; i < 2; i++ {
		time.Sleep(300 * time.Millisecond)
		c.send(protocol.ClientFrame{Type: protocol.TypePing})
		c.expect(protocol.TypePong)
	}

	// Then silence: the session is closed and deregistered.
	c.expectClosed()
	require.Eventually(t, func() bool { return !r.reg.Online(addr("aa")) },
		time.Second, 10*time.Millisecond)
}

func TestCongestedRecipient_SenderGetsQueued(t *testing.T) {
	r := newRelayCfg(t, session.Config{
		AuthTimeout:        2 * time.Second,
		IdleTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		MailboxCapacity:    1,
		MailboxSendTimeout: 50 * time.Millisecond,
	})

	bob := r.dial(t)
	bob.auth(addr("bb"))

	alice := r.dial(t)
	alice.auth(addr("aa"))

	// Bob stops reading. Large payloads fill his socket buffers, then the
	// one-slot mailbox, and further deliveries time out into the queue.
	payload := strings.Repeat("x", 60*1024)
	sawQueued := false
	for i := 0; i < 64 && !sawQueued; i++ {
		alice.send(msgFrame(addr("bb"), fmt.Sprintf("m-%d", i), payload))
		ack := alice.recv()
		switch ack["type"] {
		case protocol.TypeQueued:
			sawQueued = true
		case protocol.TypeDelivered:
		default:
			t.Fatalf("unexpected ack: %v", ack)
		}
	}
	require.True(t, sawQueued, "sender never saw a queued ack")

	// Congestion queued the overflow without tearing bob down.
	require.True(t, r.reg.Online(addr("bb")))
	require.Positive(t, r.q.Size(addr("bb")))
}

func TestDisconnect_Unregisters(t *testing.T) {
	r := newRelay(t)

	c := r.dial(t)
	c.auth(addr("aa"))
	require.Eventually(t, func() bool { return r.reg.Online(addr("aa")) },
		time.Second, 10*time.Millisecond)

	c.conn.Close()
	require.Eventually(t, func() bool { return !r.reg.Online(addr("aa")) },
		time.Second, 10*time.Millisecond)
}
