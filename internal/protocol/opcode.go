package protocol

import "fmt"

// Opcode selects a frame's payload layout and Operation variant.
type Opcode uint8

const (
	OpClientSync            Opcode = 0x00
	OpServerSync            Opcode = 0x01
	OpClientConnect         Opcode = 0x02
	OpServerConnectResponse Opcode = 0x03
	OpServerWorldUpdate     Opcode = 0x10
	OpClientMoveSetPosition Opcode = 0x20

	// OpDisconnect tags the local end-of-stream sentinel. It is never
	// transmitted and has no registered decoder.
	OpDisconnect Opcode = 0xFF
)

func (o Opcode) String() string {
	switch o {
	case OpClientSync:
		return "client_sync"
	case OpServerSync:
		return "server_sync"
	case OpClientConnect:
		return "client_connect"
	case OpServerConnectResponse:
		return "server_connect_response"
	case OpServerWorldUpdate:
		return "server_world_update"
	case OpClientMoveSetPosition:
		return "client_move_set_position"
	case OpDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("opcode_%02x", uint8(o))
	}
}

// OpcodeOf maps an operation variant to its fixed opcode.
// Operation is sealed, so the default branch is unreachable for values built
// by this package.
func OpcodeOf(op Operation) Opcode {
	switch op.(type) {
	case ClientSync:
		return OpClientSync
	case ServerSync:
		return OpServerSync
	case ClientConnect:
		return OpClientConnect
	case ServerConnectResponse:
		return OpServerConnectResponse
	case ServerWorldUpdate:
		return OpServerWorldUpdate
	case ClientMoveSetPosition:
		return OpClientMoveSetPosition
	case Disconnect:
		return OpDisconnect
	default:
		panic(fmt.Sprintf("protocol: operation %T has no opcode", op))
	}
}
