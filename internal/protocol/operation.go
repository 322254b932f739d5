package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// Operation is one decoded application message. The set of variants is
// closed; only types in this package implement it.
type Operation interface {
	fmt.Stringer
	isOperation()
}

// Vec3 is a point in realm space.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// ClientSync is the client keepalive.
type ClientSync struct{}

// ServerSync answers a ClientSync.
type ServerSync struct{}

// ClientConnect opens a realm session.
type ClientConnect struct{}

// ServerConnectResponse carries the session id assigned to a connecting client.
type ServerConnectResponse struct {
	SessionID uuid.UUID
}

// ServerWorldUpdate carries the entity state changes of one server tick.
type ServerWorldUpdate struct {
	Updates []EntityUpdate
}

// ClientMoveSetPosition requests the client's entity be moved.
type ClientMoveSetPosition struct {
	Position Vec3
}

// Disconnect is the local end-of-stream sentinel. It is produced by the
// decoder for an empty input and is never written to the wire.
type Disconnect struct{}

func (ClientSync) isOperation()            {}
func (ServerSync) isOperation()            {}
func (ClientConnect) isOperation()         {}
func (ServerConnectResponse) isOperation() {}
func (ServerWorldUpdate) isOperation()     {}
func (ClientMoveSetPosition) isOperation() {}
func (Disconnect) isOperation()            {}

func (ClientSync) String() string    { return "(client) sync" }
func (ServerSync) String() string    { return "(server) sync" }
func (ClientConnect) String() string { return "(client) connect message" }
func (Disconnect) String() string    { return "disconnected" }

func (o ServerConnectResponse) String() string {
	return fmt.Sprintf("(server) connect response session=%s", o.SessionID)
}

func (o ServerWorldUpdate) String() string {
	return fmt.Sprintf("(server) world update entities=%d", len(o.Updates))
}

func (o ClientMoveSetPosition) String() string {
	return fmt.Sprintf("(client) player movement position=%s", o.Position)
}

// EntityUpdate is the full or partial state of one entity as of one tick.
type EntityUpdate struct {
	EntityID   uuid.UUID
	Components []EntityComponent
}

// Equal reports whether two updates carry the same entity and components in
// the same order.
func (u EntityUpdate) Equal(other EntityUpdate) bool {
	if u.EntityID != other.EntityID || len(u.Components) != len(other.Components) {
		return false
	}
	for i := range u.Components {
		if u.Components[i] != other.Components[i] {
			return false
		}
	}
	return true
}

// Equal reports whether two world updates are identical entry by entry.
func (o ServerWorldUpdate) Equal(other ServerWorldUpdate) bool {
	if len(o.Updates) != len(other.Updates) {
		return false
	}
	for i := range o.Updates {
		if !o.Updates[i].Equal(other.Updates[i]) {
			return false
		}
	}
	return true
}
