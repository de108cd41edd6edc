package protocol

import "msgrelay/internal/domain"

// Frame type discriminators, server to client.
const (
	TypeAuthSuccess = "auth_success"
	TypeDelivered   = "delivered"
	TypeQueued      = "queued"
	TypeRead        = "read"
	TypePong        = "pong"
	TypeError       = "error"
)

// AuthSuccess acknowledges a successful auth frame.
type AuthSuccess struct {
	Type      string         `json:"type"`
	Address   domain.Address `json:"address"`
	Timestamp int64          `json:"timestamp"`
}

func NewAuthSuccess(addr domain.Address, ts int64) AuthSuccess {
	return AuthSuccess{Type: TypeAuthSuccess, Address: addr, Timestamp: ts}
}

// Message carries an envelope to its recipient. Queued is false for live
// delivery and true when the envelope was drained from the offline queue.
type Message struct {
	Type      string         `json:"type"`
	From      domain.Address `json:"from"`
	Content   string         `json:"content"`
	MessageID string         `json:"messageId"`
	Timestamp int64          `json:"timestamp"`
	Queued    bool           `json:"queued"`
}

func NewMessage(env domain.Envelope, queued bool) Message {
	return Message{
		Type:      TypeMessage,
		From:      env.From,
		Content:   env.Content,
		MessageID: env.MessageID,
		Timestamp: env.Timestamp,
		Queued:    queued,
	}
}

// Delivered tells the sender its message reached an online recipient.
type Delivered struct {
	Type      string         `json:"type"`
	MessageID string         `json:"messageId"`
	To        domain.Address `json:"to"`
	Timestamp int64          `json:"timestamp"`
}

func NewDelivered(messageID string, to domain.Address, ts int64) Delivered {
	return Delivered{Type: TypeDelivered, MessageID: messageID, To: to, Timestamp: ts}
}

// Queued tells the sender its message was stored for later delivery.
type Queued struct {
	Type      string         `json:"type"`
	MessageID string         `json:"messageId"`
	To        domain.Address `json:"to"`
	Timestamp int64          `json:"timestamp"`
}

func NewQueued(messageID string, to domain.Address, ts int64) Queued {
	return Queued{Type: TypeQueued, MessageID: messageID, To: to, Timestamp: ts}
}

// Read forwards a read receipt to the original sender.
type Read struct {
	Type      string         `json:"type"`
	From      domain.Address `json:"from"`
	MessageID string         `json:"messageId"`
	Timestamp int64          `json:"timestamp"`
}

func NewRead(from domain.Address, messageID string, ts int64) Read {
	return Read{Type: TypeRead, From: from, MessageID: messageID, Timestamp: ts}
}

// Typing forwards a typing indicator.
type Typing struct {
	Type     string         `json:"type"`
	From     domain.Address `json:"from"`
	IsTyping bool           `json:"isTyping"`
}

func NewTyping(from domain.Address, isTyping bool) Typing {
	return Typing{Type: TypeTyping, From: from, IsTyping: isTyping}
}

// Pong answers a client ping.
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func NewPong(ts int64) Pong {
	return Pong{Type: TypePong, Timestamp: ts}
}

// Error carries a short reason for a rejected frame. It never includes
// internal detail.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}
