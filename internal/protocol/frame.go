package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"msgrelay/internal/domain"
)

// Frame type discriminators, client to server.
const (
	TypeAuth        = "auth"
	TypeMessage     = "message"
	TypeTyping      = "typing"
	TypeReadReceipt = "read_receipt"
	TypePing        = "ping"
)

// Field size limits. Content carries opaque ciphertext; the relay only
// bounds it, never inspects it.
const (
	MaxMessageIDLen = 128
	MaxContentLen   = 64 * 1024

	// MaxFrameLen bounds a whole inbound frame: the content cap plus
	// headroom for the remaining fields and JSON framing.
	MaxFrameLen = MaxContentLen + 1024
)

var (
	ErrBadFrame     = errors.New("malformed frame")
	ErrUnknownType  = errors.New("unknown frame type")
	ErrBadMessageID = errors.New("messageId missing or too long")
	ErrBadContent   = errors.New("content too long")
	ErrBadTimestamp = errors.New("timestamp must be a non-negative integer")
)

// ClientFrame is the union of every field a client may send. Type
// selects which fields are meaningful; the rest stay at their zero
// values. Unknown JSON fields are ignored, which keeps the auth frame
// open for a future signature extension.
type ClientFrame struct {
	Type      string `json:"type"`
	Address   string `json:"address,omitempty"`
	To        string `json:"to,omitempty"`
	Content   string `json:"content,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	IsTyping  bool   `json:"isTyping,omitempty"`
}

// ParseClientFrame decodes one inbound frame. It fails only on invalid
// JSON or a missing discriminator; per-type field validation is separate
// so an unknown type can be ignored rather than rejected.
func ParseClientFrame(data []byte) (ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if f.Type == "" {
		return ClientFrame{}, fmt.Errorf("%w: missing type", ErrBadFrame)
	}
	return f, nil
}

// KnownType reports whether t is a frame type the relay handles.
func KnownType(t string) bool {
	switch t {
	case TypeAuth, TypeMessage, TypeTyping, TypeReadReceipt, TypePing:
		return true
	}
	return false
}

// ValidateAuth checks an auth frame and returns the canonical address.
func ValidateAuth(f ClientFrame) (domain.Address, error) {
	return domain.ParseAddress(f.Address)
}

// ValidateMessage checks a message frame and returns the envelope to
// route, stamped with the sender address.
func ValidateMessage(f ClientFrame, from domain.Address) (domain.Envelope, error) {
	to, err := domain.ParseAddress(f.To)
	if err != nil {
		return domain.Envelope{}, err
	}
	if f.MessageID == "" || len(f.MessageID) > MaxMessageIDLen {
		return domain.Envelope{}, ErrBadMessageID
	}
	// Content is opaque ciphertext; only its size is bounded. A
	// zero-length payload is legal.
	if len(f.Content) > MaxContentLen {
		return domain.Envelope{}, ErrBadContent
	}
	if f.Timestamp < 0 {
		return domain.Envelope{}, ErrBadTimestamp
	}
	return domain.Envelope{
		MessageID: f.MessageID,
		From:      from,
		To:        to,
		Content:   f.Content,
		Timestamp: f.Timestamp,
	}, nil
}

// ValidateTyping checks a typing frame and returns the recipient.
func ValidateTyping(f ClientFrame) (domain.Address, error) {
	return domain.ParseAddress(f.To)
}

// ValidateReadReceipt checks a read_receipt frame and returns the
// recipient.
func ValidateReadReceipt(f ClientFrame) (domain.Address, error) {
	to, err := domain.ParseAddress(f.To)
	if err != nil {
		return "", err
	}
	if f.MessageID == "" || len(f.MessageID) > MaxMessageIDLen {
		return "", ErrBadMessageID
	}
	return to, nil
}
