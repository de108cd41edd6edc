// Package relay provides a Go client for the relay service.
//
// Client speaks the WebSocket frame protocol: it dials, authenticates
// with an address, routes inbound frames to per-type callbacks, and
// keeps the session alive with periodic pings. HTTPClient covers the
// REST surface for publishing and fetching public keys.
//
// The client never encrypts or decrypts anything; callers hand it
// ciphertext and get ciphertext back.
package relay
