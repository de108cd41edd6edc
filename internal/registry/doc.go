// Package registry maps addresses to live session handles and publishes
// presence changes.
//
// The invariant is at most one session per address: a new registration
// displaces the previous one atomically, returning the displaced handle
// so its owner can be signalled to close. Unregister compares handles by
// identity, so a displaced session's late teardown can never evict its
// replacement.
package registry
