package session

import "time"

// Config holds the session timers and mailbox sizing.
type Config struct {
	// AuthTimeout bounds the wait for the first (auth) frame.
	AuthTimeout time.Duration

	// IdleTimeout closes a session that has not sent any frame, ping
	// included, within the window. Any inbound frame resets it.
	IdleTimeout time.Duration

	// WriteTimeout bounds a single socket write.
	WriteTimeout time.Duration

	// MailboxCapacity is the outbound mailbox depth; it drives
	// backpressure toward senders.
	MailboxCapacity int

	// MailboxSendTimeout is how long a cross-session post waits before
	// declaring the recipient congested.
	MailboxSendTimeout time.Duration

	// DrainDeadline bounds the mailbox flush during teardown.
	DrainDeadline time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AuthTimeout:        10 * time.Second,
		IdleTimeout:        60 * time.Second,
		WriteTimeout:       10 * time.Second,
		MailboxCapacity:    256,
		MailboxSendTimeout: 100 * time.Millisecond,
		DrainDeadline:      time.Second,
	}
}

// withDefaults fills any zero field from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = d.AuthTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MailboxCapacity <= 0 {
		c.MailboxCapacity = d.MailboxCapacity
	}
	if c.MailboxSendTimeout <= 0 {
		c.MailboxSendTimeout = d.MailboxSendTimeout
	}
	if c.DrainDeadline <= 0 {
		c.DrainDeadline = d.DrainDeadline
	}
	return c
}
