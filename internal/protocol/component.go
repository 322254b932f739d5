package protocol

import "fmt"

// ComponentTag is the wire tag of an EntityComponent.
type ComponentTag uint8

const (
	TagHealth   ComponentTag = 0x01
	TagPosition ComponentTag = 0x02
)

// EntityComponent is one typed piece of entity state. Variants are
// comparable values so updates can be compared with ==. The set is closed;
// adding a variant means allocating a tag and extending the world update
// codec.
type EntityComponent interface {
	Tag() ComponentTag
	fmt.Stringer
	isComponent()
}

// Health is an entity's remaining health.
type Health uint64

// Position is an entity's location.
type Position Vec3

func (Health) Tag() ComponentTag   { return TagHealth }
func (Position) Tag() ComponentTag { return TagPosition }

func (Health) isComponent()   {}
func (Position) isComponent() {}

func (h Health) String() string   { return fmt.Sprintf("health=%d", uint64(h)) }
func (p Position) String() string { return "position=" + Vec3(p).String() }

// BodyLen returns the fixed encoded body size for a tag, excluding the tag
// byte itself. Unknown tags report ok == false.
func (t ComponentTag) BodyLen() (int, bool) {
	switch t {
	case TagHealth:
		return 8, true
	case TagPosition:
		return 24, true
	default:
		return 0, false
	}
}
