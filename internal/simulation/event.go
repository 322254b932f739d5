package simulation

import (
	"fmt"

	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/google/uuid"
)

// Event is a state change requested from outside the tick goroutine.
type Event interface {
	fmt.Stringer
	isEvent()
}

// Join spawns the entity owned by Session.
type Join struct {
	Session uuid.UUID
}

// Leave despawns the entity owned by Session.
type Leave struct {
	Session uuid.UUID
}

// Move sets the position of the entity owned by Session.
type Move struct {
	Session  uuid.UUID
	Position protocol.Vec3
}

func (Join) isEvent()  {}
func (Leave) isEvent() {}
func (Move) isEvent()  {}

func (e Join) String() string  { return "join session=" + e.Session.String() }
func (e Leave) String() string { return "leave session=" + e.Session.String() }
func (e Move) String() string {
	return fmt.Sprintf("move session=%s position=%s", e.Session, e.Position)
}
