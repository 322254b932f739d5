package codec

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"

	"github.com/danmuck/reckoning/internal/protocol"
)

// payloadReader walks one frame's payload window. The window never extends
// past the header's declared size. Running out of bytes means ErrIncomplete
// while the declared payload has not fully arrived, and ErrBadData once it
// has: a complete payload that is too short for its contents is malformed.
type payloadReader struct {
	buf      []byte
	pos      int
	complete bool
}

func newPayloadReader(declared uint16, payload []byte) *payloadReader {
	return &payloadReader{
		buf:      payload,
		complete: len(payload) >= int(declared),
	}
}

func (r *payloadReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *payloadReader) short() error {
	if r.complete {
		return protocol.ErrBadData
	}
	return protocol.ErrIncomplete
}

// need checks that n more bytes are available before anything is consumed.
func (r *payloadReader) need(n int) error {
	if r.remaining() < n {
		return r.short()
	}
	return nil
}

func (r *payloadReader) u8() byte {
	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *payloadReader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *payloadReader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}

func (r *payloadReader) f64() float64 {
	return math.Float64frombits(r.u64())
}

func (r *payloadReader) vec3() protocol.Vec3 {
	return protocol.Vec3{X: r.f64(), Y: r.f64(), Z: r.f64()}
}

// uuid copies the next 16 bytes out of the buffer.
func (r *payloadReader) uuid() uuid.UUID {
	var id uuid.UUID
	copy(id[:], r.buf[r.pos:r.pos+len(id)])
	r.pos += len(id)
	return id
}

// finish rejects a fully buffered payload with unread trailing bytes.
func (r *payloadReader) finish() error {
	if !r.complete {
		return protocol.ErrIncomplete
	}
	if r.remaining() != 0 {
		return protocol.ErrBadData
	}
	return nil
}

func appendU32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

func appendU64(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

func appendVec3(dst []byte, v protocol.Vec3) []byte {
	dst = appendU64(dst, math.Float64bits(v.X))
	dst = appendU64(dst, math.Float64bits(v.Y))
	return appendU64(dst, math.Float64bits(v.Z))
}
