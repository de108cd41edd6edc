package domain

import "errors"

var (
	// ErrInvalidAddress indicates a string that does not match the canonical
	// 0x-prefixed 40-hex-digit address form.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrNotFound indicates a lookup for an address with no stored record.
	ErrNotFound = errors.New("not found")

	// ErrPayloadTooLarge indicates a public key or message field over its
	// configured size cap.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrBatchTooLarge indicates a batch request over the configured maximum.
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrSessionClosed indicates an operation on a session that has already
	// begun teardown.
	ErrSessionClosed = errors.New("session closed")
)
