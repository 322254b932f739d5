package codec

import (
	"bytes"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/danmuck/reckoning/internal/protocol/frame"
)

// Observer receives frame-level codec events. Implementations must be safe
// for concurrent use; one Observer is shared by every connection.
type Observer interface {
	FrameEncoded(opcode protocol.Opcode, frameLen int)
	FrameDecoded(opcode protocol.Opcode, frameLen int)
	FrameRejected(opcode protocol.Opcode, err error)
	BytesSkipped(n int)
}

type nopObserver struct{}

func (nopObserver) FrameEncoded(protocol.Opcode, int)    {}
func (nopObserver) FrameDecoded(protocol.Opcode, int)    {}
func (nopObserver) FrameRejected(protocol.Opcode, error) {}
func (nopObserver) BytesSkipped(int)                     {}

// Option configures a Codec.
type Option func(*Codec)

// WithObserver routes frame events to obs.
func WithObserver(obs Observer) Option {
	return func(c *Codec) {
		if obs != nil {
			c.observer = obs
		}
	}
}

// Codec turns a byte stream into operations and back. It keeps no state
// between calls: the pending input buffer belongs to the caller, so one Codec
// value can serve any number of connections concurrently.
type Codec struct {
	observer Observer
}

// New builds a Codec.
func New(opts ...Option) Codec {
	c := Codec{observer: nopObserver{}}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Encode appends the frame for op to out.
func (c Codec) Encode(op protocol.Operation, out *bytes.Buffer) error {
	frameBytes, err := c.Append(out.AvailableBuffer(), op)
	if err != nil {
		return err
	}
	out.Write(frameBytes)
	return nil
}

// Append appends the frame for op to dst and returns the extended slice.
// On error dst is returned unchanged.
func (c Codec) Append(dst []byte, op protocol.Operation) ([]byte, error) {
	if op == nil {
		return dst, fmt.Errorf("codec: encode nil operation: %w", protocol.ErrInvalidOpcode)
	}
	opcode := protocol.OpcodeOf(op)
	enc, ok := EncoderFor(opcode)
	if !ok {
		return dst, fmt.Errorf("codec: encode %s: %w", op, protocol.InvalidOpcodeError{Opcode: opcode})
	}

	start := len(dst)
	dst = append(dst, make([]byte, frame.HeaderLen)...)
	dst = enc(op, dst)

	size := len(dst) - start - frame.HeaderLen
	if size > frame.MaxPayloadLen {
		return dst[:start], fmt.Errorf("codec: encode %s: %w: %d bytes", opcode, protocol.ErrPayloadTooLarge, size)
	}
	frame.PutHeader(dst[start:], frame.Header{Size: uint16(size), Opcode: opcode})

	frameLen := frame.HeaderLen + size
	c.observer.FrameEncoded(opcode, frameLen)
	log.Trace().
		Str("opcode", opcode.String()).
		Int("frame_len", frameLen).
		Stringer("op", op).
		Msg("codec.Codec.Encode")
	return dst, nil
}

// Decode extracts the next operation from the front of buf.
//
// An empty buf yields protocol.Disconnect. ok == false means more bytes are
// needed; the partial frame stays at the front of buf and calling Decode
// again without appending returns the same result. Bytes preceding a frame
// start are discarded, as are corrupt or unrecognised frames: they are logged
// and the stream resynchronises on the next magic sequence.
func (c Codec) Decode(buf *bytes.Buffer) (op protocol.Operation, ok bool) {
	if buf.Len() == 0 {
		return protocol.Disconnect{}, true
	}

	for {
		offset, found := frame.Find(buf.Bytes())
		if !found {
			return nil, false
		}
		if offset > 0 {
			buf.Next(offset)
			c.observer.BytesSkipped(offset)
		}

		data := buf.Bytes()
		h, err := frame.ReadHeader(data)
		if protocol.IsIncomplete(err) {
			return nil, false
		}
		if err != nil {
			c.skip(buf)
			continue
		}

		payload := data[frame.HeaderLen:]
		if len(payload) > int(h.Size) {
			payload = payload[:h.Size]
		}
		op, err := DecoderFor(h.Opcode)(h, payload)
		switch {
		case err == nil:
			buf.Next(h.FrameLen())
			c.observer.FrameDecoded(h.Opcode, h.FrameLen())
			log.Trace().
				Str("opcode", h.Opcode.String()).
				Int("frame_len", h.FrameLen()).
				Stringer("op", op).
				Msg("codec.Codec.Decode")
			return op, true
		case protocol.IsIncomplete(err):
			return nil, false
		default:
			c.observer.FrameRejected(h.Opcode, err)
			log.Debug().
				Err(err).
				Str("opcode", h.Opcode.String()).
				Uint16("size", h.Size).
				Msg("codec.Codec.Decode frame rejected")
			c.skip(buf)
		}
	}
}

// skip drops the first byte of a frame that cannot be decoded so the next
// scan starts past its magic.
func (c Codec) skip(buf *bytes.Buffer) {
	buf.Next(1)
	c.observer.BytesSkipped(1)
}
