package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrIncomplete reports that more bytes are needed before a frame can be
	// decoded. It is a wait signal, not a failure: nothing has been consumed.
	ErrIncomplete = errors.New("protocol: incomplete data")

	ErrBadData         = errors.New("protocol: bad data")
	ErrInvalidOpcode   = errors.New("protocol: invalid opcode")
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
)

// InvalidOpcodeError is returned when no codec is registered for an opcode.
type InvalidOpcodeError struct {
	Opcode Opcode
}

func (e InvalidOpcodeError) Error() string {
	return fmt.Sprintf("protocol: invalid opcode: %02X", uint8(e.Opcode))
}

func (e InvalidOpcodeError) Is(target error) bool {
	return target == ErrInvalidOpcode
}

// IsIncomplete reports whether err asks the caller to wait for more bytes.
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrIncomplete)
}
