package codec

import (
	"fmt"

	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/danmuck/reckoning/internal/protocol/frame"
)

const (
	uuidLen     = 16
	vec3Len     = 3 * 8
	countLen    = 4
	tagLen      = 1
	entityHead  = uuidLen + countLen
	worldHead   = countLen
	sessionBody = uuidLen
)

// decodeInvalidOpcode backs every opcode without a registered decoder.
func decodeInvalidOpcode(h frame.Header, _ []byte) (protocol.Operation, error) {
	return nil, protocol.InvalidOpcodeError{Opcode: h.Opcode}
}

// decodeNoBody builds a decoder for an operation without payload. The
// payload bytes are never inspected.
func decodeNoBody(op protocol.Operation) DecoderFunc {
	return func(h frame.Header, _ []byte) (protocol.Operation, error) {
		if h.Size != 0 {
			return nil, protocol.ErrBadData
		}
		return op, nil
	}
}

func encodeNoBody(_ protocol.Operation, dst []byte) []byte {
	return dst
}

func encodeServerConnectResponse(op protocol.Operation, dst []byte) []byte {
	data := mustOperation[protocol.ServerConnectResponse](op)
	return append(dst, data.SessionID[:]...)
}

func decodeServerConnectResponse(h frame.Header, payload []byte) (protocol.Operation, error) {
	if h.Size != sessionBody {
		return nil, protocol.ErrBadData
	}
	r := newPayloadReader(h.Size, payload)
	if err := r.need(sessionBody); err != nil {
		return nil, err
	}
	return protocol.ServerConnectResponse{SessionID: r.uuid()}, nil
}

func encodeClientMoveSetPosition(op protocol.Operation, dst []byte) []byte {
	data := mustOperation[protocol.ClientMoveSetPosition](op)
	return appendVec3(dst, data.Position)
}

func decodeClientMoveSetPosition(h frame.Header, payload []byte) (protocol.Operation, error) {
	if h.Size != vec3Len {
		return nil, protocol.ErrBadData
	}
	r := newPayloadReader(h.Size, payload)
	if err := r.need(vec3Len); err != nil {
		return nil, err
	}
	return protocol.ClientMoveSetPosition{Position: r.vec3()}, nil
}

// mustOperation asserts the variant an encoder was registered for. The
// registry selects encoders through protocol.OpcodeOf, so a mismatch is a
// programming error.
func mustOperation[T protocol.Operation](op protocol.Operation) T {
	data, ok := op.(T)
	if !ok {
		var want T
		panic(fmt.Sprintf("codec: encoder for %T called with %T", want, op))
	}
	return data
}
