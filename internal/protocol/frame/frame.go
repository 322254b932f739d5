package frame

import (
	"encoding/binary"

	"github.com/danmuck/reckoning/internal/protocol"
)

const (
	// HeaderLen is the fixed size of every frame header on the wire.
	HeaderLen = 8

	// MaxPayloadLen is the largest payload the 16-bit size field can describe.
	MaxPayloadLen = 1<<16 - 1

	paddingLen = 3
)

// Magic opens every frame and is the resynchronisation anchor.
var Magic = [2]byte{0xEC, 0xAA}

// Header is the fixed wire header.
//
// Layout (little-endian):
//
//	[2B magic][2B payload size][1B opcode][3B padding]
type Header struct {
	Size   uint16
	Opcode protocol.Opcode
}

// FrameLen returns the number of bytes the whole frame occupies.
func (h Header) FrameLen() int {
	return HeaderLen + int(h.Size)
}

// WriteHeader appends the encoded header to dst and returns the extended
// slice. Padding bytes are always zero.
func WriteHeader(dst []byte, h Header) []byte {
	var buf [HeaderLen]byte
	PutHeader(buf[:], h)
	return append(dst, buf[:]...)
}

// PutHeader encodes h into the first HeaderLen bytes of b.
func PutHeader(b []byte, h Header) {
	_ = b[HeaderLen-1]
	b[0] = Magic[0]
	b[1] = Magic[1]
	binary.LittleEndian.PutUint16(b[2:4], h.Size)
	b[4] = byte(h.Opcode)
	for i := 5; i < 5+paddingLen; i++ {
		b[i] = 0
	}
}

// ReadHeader parses the header at the start of buf without consuming it.
// It returns protocol.ErrIncomplete when fewer than HeaderLen bytes are
// present and protocol.ErrBadData when the magic does not match.
func ReadHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, protocol.ErrIncomplete
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] {
		return Header{}, protocol.ErrBadData
	}
	return Header{
		Size:   binary.LittleEndian.Uint16(buf[2:4]),
		Opcode: protocol.Opcode(buf[4]),
	}, nil
}
