// Package realm serves the simulation to game clients.
//
// Ownership boundary:
// - TCP/TLS and WebSocket accept loops
// - per-session handshake, read loop and outbox writer
// - broadcasting simulation ticks to every session
// - the admin HTTP API (health, status, sessions, metrics)
package realm
