package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"msgrelay/internal/domain"
	"msgrelay/internal/protocol"
)

// DefaultPingInterval keeps the session inside the server's idle window.
const DefaultPingInterval = 25 * time.Second

// Callbacks receive inbound frames. Nil callbacks drop their frame kind.
// They are invoked from the client's read goroutine, so they must not
// block for long.
type Callbacks struct {
	OnMessage   func(env domain.Envelope)
	OnDelivered func(messageID string, to domain.Address, timestamp int64)
	OnQueued    func(messageID string, to domain.Address, timestamp int64)
	OnTyping    func(from domain.Address, isTyping bool)
	OnRead      func(from domain.Address, messageID string, timestamp int64)
	OnError     func(message string)
	OnClose     func(err error)
}

// Client is an authenticated WebSocket session with the relay.
type Client struct {
	conn *websocket.Conn
	addr domain.Address
	cb   Callbacks

	pingInterval time.Duration

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// serverFrame is the union of every field the server may send.
type serverFrame struct {
	Type      string         `json:"type"`
	Address   domain.Address `json:"address"`
	From      domain.Address `json:"from"`
	To        domain.Address `json:"to"`
	Content   string         `json:"content"`
	MessageID string         `json:"messageId"`
	Timestamp int64          `json:"timestamp"`
	Queued    bool           `json:"queued"`
	IsTyping  bool           `json:"isTyping"`
	Message   string         `json:"message"`
}

// Dial connects to url (a ws:// or wss:// endpoint), authenticates as
// addr, and starts the read and ping loops. It returns once the server
// has acknowledged the auth frame; queued envelopes may already be
// arriving at OnMessage by then.
func Dial(ctx context.Context, url string, addr domain.Address, cb Callbacks) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	c := &Client{
		conn:         conn,
		addr:         addr,
		cb:           cb,
		pingInterval: DefaultPingInterval,
		done:         make(chan struct{}),
	}

	if err := c.writeFrame(protocol.ClientFrame{Type: protocol.TypeAuth, Address: addr.String()}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send auth: %w", err)
	}
	if err := c.awaitAuth(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// awaitAuth reads until auth_success or an error frame. Frames arriving
// before the acknowledgement are not expected: the server acknowledges
// before it drains the offline queue.
func (c *Client) awaitAuth(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	var f serverFrame
	if err := c.conn.ReadJSON(&f); err != nil {
		return fmt.Errorf("await auth: %w", err)
	}
	switch f.Type {
	case protocol.TypeAuthSuccess:
		return nil
	case protocol.TypeError:
		return fmt.Errorf("auth rejected: %s", f.Message)
	default:
		return fmt.Errorf("unexpected frame %q before auth ack", f.Type)
	}
}

// Address returns the address this client authenticated as.
func (c *Client) Address() domain.Address { return c.addr }

// Send routes an opaque ciphertext payload to another address. An empty
// messageID is replaced with a fresh UUID; a zero timestamp with the
// current time. The chosen messageID is returned so the caller can match
// the delivered/queued acknowledgement.
func (c *Client) Send(to domain.Address, content, messageID string, timestamp int64) (string, error) {
	if messageID == "" {
		messageID = uuid.NewString()
	}
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}
	err := c.writeFrame(protocol.ClientFrame{
		Type:      protocol.TypeMessage,
		To:        to.String(),
		Content:   content,
		MessageID: messageID,
		Timestamp: timestamp,
	})
	if err != nil {
		return "", err
	}
	return messageID, nil
}

// Typing sends a best-effort typing indicator.
func (c *Client) Typing(to domain.Address, isTyping bool) error {
	return c.writeFrame(protocol.ClientFrame{
		Type:     protocol.TypeTyping,
		To:       to.String(),
		IsTyping: isTyping,
	})
}

// ReadReceipt sends a best-effort read receipt for messageID.
func (c *Client) ReadReceipt(to domain.Address, messageID string) error {
	return c.writeFrame(protocol.ClientFrame{
		Type:      protocol.TypeReadReceipt,
		To:        to.String(),
		MessageID: messageID,
	})
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) writeFrame(f protocol.ClientFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return domain.ErrSessionClosed
	default:
	}
	return c.conn.WriteJSON(f)
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				err = nil
			default:
			}
			if c.cb.OnClose != nil {
				c.cb.OnClose(err)
			}
			return
		}

		var f serverFrame
		if err := json.Unmarshal(data, &f); err != nil {
			continue // unknown or malformed frames are ignored
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f serverFrame) {
	switch f.Type {
	case protocol.TypeMessage:
		if c.cb.OnMessage != nil {
			c.cb.OnMessage(domain.Envelope{
				MessageID: f.MessageID,
				From:      f.From,
				To:        c.addr,
				Content:   f.Content,
				Timestamp: f.Timestamp,
				Queued:    f.Queued,
			})
		}
	case protocol.TypeDelivered:
		if c.cb.OnDelivered != nil {
			c.cb.OnDelivered(f.MessageID, f.To, f.Timestamp)
		}
	case protocol.TypeQueued:
		if c.cb.OnQueued != nil {
			c.cb.OnQueued(f.MessageID, f.To, f.Timestamp)
		}
	case protocol.TypeTyping:
		if c.cb.OnTyping != nil {
			c.cb.OnTyping(f.From, f.IsTyping)
		}
	case protocol.TypeRead:
		if c.cb.OnRead != nil {
			c.cb.OnRead(f.From, f.MessageID, f.Timestamp)
		}
	case protocol.TypeError:
		if c.cb.OnError != nil {
			c.cb.OnError(f.Message)
		}
	case protocol.TypePong:
		// idle keepalive acknowledged; nothing to do
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.writeFrame(protocol.ClientFrame{Type: protocol.TypePing}); err != nil {
				return
			}
		}
	}
}
