// Package app wires the relay's components and runs them as one
// process: the shared HTTP/WebSocket listener, the queue purge loop and
// graceful shutdown. Configuration is read from the environment at
// startup and never persisted.
package app
