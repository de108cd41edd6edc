package domain

import "time"

// Envelope is the routing record for one opaque ciphertext payload. The
// relay never reads or transforms Content; Timestamp is client-supplied
// and preserved verbatim.
type Envelope struct {
	MessageID string  `json:"messageId"`
	From      Address `json:"from"`
	To        Address `json:"to"`
	Content   string  `json:"content"`
	Timestamp int64   `json:"timestamp"`
	Queued    bool    `json:"queued,omitempty"`
}

// KeyRecord is one published public key. At most one record exists per
// address; re-storing advances UpdatedAt and preserves CreatedAt.
type KeyRecord struct {
	Address   Address   `json:"address"`
	PublicKey string    `json:"publicKey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PresenceEvent records an address going online or offline.
type PresenceEvent struct {
	Address Address   `json:"address"`
	Online  bool      `json:"online"`
	At      time.Time `json:"at"`
}

// QueueStats is an aggregate snapshot of the offline message queue.
type QueueStats struct {
	Addresses int `json:"addresses"`
	Messages  int `json:"messages"`
}
