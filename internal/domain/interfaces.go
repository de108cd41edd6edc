package domain

// Session is the registry's view of a live authenticated connection.
// Implementations are pointer types, so handles compare by identity.
// Deliver and the Notify methods post to the session's bounded outbound
// mailbox; a false return means the mailbox was congested or the session
// is closing, never that the connection failed.
type Session interface {
	// Address returns the address this session authenticated as.
	Address() Address

	// Deliver posts a message frame for the session's client. It waits up
	// to the configured mailbox send timeout before reporting congestion.
	Deliver(env Envelope) bool

	// NotifyTyping posts a best-effort typing indicator. Never blocks.
	NotifyTyping(from Address, isTyping bool) bool

	// NotifyRead posts a best-effort read receipt. Never blocks.
	NotifyRead(from Address, messageID string, timestamp int64) bool

	// SignalClose asks the session to stop accepting traffic and tear
	// down promptly. Safe to call more than once.
	SignalClose()
}

// KeyDirectory stores one public key per address.
type KeyDirectory interface {
	Store(addr Address, publicKey string) (KeyRecord, error)
	Get(addr Address) (KeyRecord, bool)
	GetBatch(addrs []Address) (map[Address]KeyRecord, error)
	Delete(addr Address)
	Has(addr Address) bool
	Len() int
}

// MessageQueue holds bounded per-recipient FIFOs of undelivered envelopes.
type MessageQueue interface {
	// Enqueue appends env to the recipient's FIFO, evicting from the head
	// when the per-user cap is reached. It returns how many entries were
	// evicted; the incoming envelope is always accepted.
	Enqueue(env Envelope) int

	// Drain atomically removes and returns all non-expired entries for
	// addr, oldest first.
	Drain(addr Address) []Envelope

	// Peek returns a copy of the non-expired entries without removing them.
	Peek(addr Address) []Envelope

	Size(addr Address) int
	Clear(addr Address)
	PurgeExpired() int
	Stats() QueueStats
}
