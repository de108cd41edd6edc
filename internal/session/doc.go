// Package session owns client connections from accept to close.
//
// Each connection is driven by a read goroutine and a write goroutine.
// The write goroutine is the only writer to the socket; everything else,
// including other sessions, posts through a bounded outbound mailbox.
// Mailbox overflow is the backpressure signal: a congested recipient is
// treated as offline for that message and the envelope goes to the
// offline queue instead.
//
// A session is a small state machine: it must authenticate with its
// first frame inside the auth timeout, then frames are dispatched by
// type until the client disconnects, goes idle past the idle timeout,
// violates the protocol, or is displaced by a newer session for the
// same address.
package session
