// Package session owns per-connection realm transport state.
//
// Ownership boundary:
// - the pending decode buffer of one connection
// - frame read/write over TCP, TLS or WebSocket byte streams
// - outbound queueing, keepalive timing and reconnect backoff
//
// The codec itself is stateless; everything that must survive between two
// reads of the same connection lives in Conn.
package session
