package codec

import (
	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/danmuck/reckoning/internal/protocol/frame"
)

// DecoderFunc decodes one payload. payload holds the bytes after the header,
// capped at h.Size; it may be shorter than h.Size while the frame is still
// arriving, in which case the decoder returns protocol.ErrIncomplete.
type DecoderFunc func(h frame.Header, payload []byte) (protocol.Operation, error)

// EncoderFunc appends the payload of op to dst.
type EncoderFunc func(op protocol.Operation, dst []byte) []byte

// Dispatch tables indexed by the full opcode range. Built once at package
// initialisation and never written afterwards.
var (
	decoders = buildDecoders()
	encoders = buildEncoders()
)

func buildDecoders() [256]DecoderFunc {
	var table [256]DecoderFunc
	for i := range table {
		table[i] = decodeInvalidOpcode
	}
	table[protocol.OpClientSync] = decodeNoBody(protocol.ClientSync{})
	table[protocol.OpServerSync] = decodeNoBody(protocol.ServerSync{})
	table[protocol.OpClientConnect] = decodeNoBody(protocol.ClientConnect{})
	table[protocol.OpServerConnectResponse] = decodeServerConnectResponse
	table[protocol.OpServerWorldUpdate] = decodeServerWorldUpdate
	table[protocol.OpClientMoveSetPosition] = decodeClientMoveSetPosition
	return table
}

func buildEncoders() [256]EncoderFunc {
	var table [256]EncoderFunc
	table[protocol.OpClientSync] = encodeNoBody
	table[protocol.OpServerSync] = encodeNoBody
	table[protocol.OpClientConnect] = encodeNoBody
	table[protocol.OpServerConnectResponse] = encodeServerConnectResponse
	table[protocol.OpServerWorldUpdate] = encodeServerWorldUpdate
	table[protocol.OpClientMoveSetPosition] = encodeClientMoveSetPosition
	return table
}

// DecoderFor returns the decoder registered for opcode. Every opcode maps to
// a decoder; unassigned ones always fail with protocol.InvalidOpcodeError.
func DecoderFor(opcode protocol.Opcode) DecoderFunc {
	return decoders[opcode]
}

// EncoderFor returns the encoder registered for opcode, if any.
func EncoderFor(opcode protocol.Opcode) (EncoderFunc, bool) {
	enc := encoders[opcode]
	return enc, enc != nil
}
