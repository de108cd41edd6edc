// Package protocol defines the JSON frame grammar spoken over the
// WebSocket transport.
//
// Every frame is a JSON object with a "type" discriminator. Inbound
// frames parse into a single tagged ClientFrame; unknown types are left
// to the caller to ignore. Outbound frames are small typed structs with
// constructors that fill the discriminator, so a frame can only be built
// in a valid shape.
package protocol
