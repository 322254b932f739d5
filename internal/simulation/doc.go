// Package simulation runs the authoritative realm state at a fixed tick rate.
//
// Connection goroutines push events; one goroutine calls Tick (directly or
// through Run), which drains the queue, applies the events, and returns the
// components that changed as a protocol.ServerWorldUpdate.
package simulation
