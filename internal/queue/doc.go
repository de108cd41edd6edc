// Package queue implements the offline message queue: a bounded
// per-recipient FIFO of ciphertext envelopes with age-based expiry.
//
// The queue prefers losing the oldest stale entry over refusing new
// traffic: at capacity the head is dropped and the incoming envelope is
// always accepted. Expired entries are removed by a periodic sweep and
// reconciled on every Drain.
package queue
