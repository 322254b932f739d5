package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/danmuck/reckoning/internal/protocol/codec"
	"github.com/rs/zerolog/log"
)

// ErrPendingOverflow reports a peer whose undecoded input outgrew MaxPendingBytes.
var ErrPendingOverflow = errors.New("session: pending input overflow")

// Transport is the byte stream under a Conn.
type Transport interface {
	io.ReadWriteCloser
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

type deadlineSetter interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Conn carries operations over one transport. It keeps the input that has
// not decoded yet between reads.
//
// ReadOperation must be called from one goroutine. WriteOperation is safe for
// concurrent use.
type Conn struct {
	transport Transport
	codec     codec.Codec
	cfg       Config

	pending bytes.Buffer
	chunk   []byte
	eof     bool

	writeMu sync.Mutex
	wbuf    []byte

	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64
	buffered atomic.Int64
}

// ConnStats is a point-in-time view of one connection's traffic.
type ConnStats struct {
	BytesIn      uint64
	BytesOut     uint64
	PendingBytes int
}

func NewConn(t Transport, c codec.Codec, cfg Config) *Conn {
	cfg = cfg.WithDefaults()
	return &Conn{
		transport: t,
		codec:     c,
		cfg:       cfg,
		chunk:     make([]byte, cfg.ReadChunkSize),
	}
}

// ReadOperation returns the next decoded operation. A transport that reaches
// end of stream yields protocol.Disconnect; any partial frame still pending
// at that point is discarded.
func (c *Conn) ReadOperation(ctx context.Context) (protocol.Operation, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.pending.Len() > 0 {
			op, ok := c.codec.Decode(&c.pending)
			c.buffered.Store(int64(c.pending.Len()))
			if ok {
				return op, nil
			}
		}
		if c.eof {
			if n := c.pending.Len(); n > 0 {
				log.Debug().
					Stringer("remote", c.RemoteAddr()).
					Int("dropped_partial", n).
					Msg("session.Conn.ReadOperation partial frame at end of stream")
				c.pending.Reset()
				c.buffered.Store(0)
			}
			op, _ := c.codec.Decode(&c.pending)
			return op, nil
		}
		if c.pending.Len() > c.cfg.MaxPendingBytes {
			return nil, fmt.Errorf("%w: %d bytes", ErrPendingOverflow, c.pending.Len())
		}
		if err := c.fill(); err != nil {
			return nil, err
		}
	}
}

func (c *Conn) fill() error {
	if d, ok := c.transport.(deadlineSetter); ok && c.cfg.ReadTimeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	n, err := c.transport.Read(c.chunk)
	if n > 0 {
		c.pending.Write(c.chunk[:n])
		c.bytesIn.Add(uint64(n))
		c.buffered.Store(int64(c.pending.Len()))
	}
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			c.eof = true
			return nil
		}
		return err
	}
	return nil
}

// WriteOperation encodes op and writes it as one frame.
func (c *Conn) WriteOperation(op protocol.Operation) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	frame, err := c.codec.Append(c.wbuf[:0], op)
	if err != nil {
		return err
	}
	c.wbuf = frame
	if d, ok := c.transport.(deadlineSetter); ok && c.cfg.WriteTimeout > 0 {
		_ = d.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	n, err := c.transport.Write(frame)
	c.bytesOut.Add(uint64(n))
	return err
}

func (c *Conn) Stats() ConnStats {
	return ConnStats{
		BytesIn:      c.bytesIn.Load(),
		BytesOut:     c.bytesOut.Load(),
		PendingBytes: int(c.buffered.Load()),
	}
}

func (c *Conn) Close() error {
	return c.transport.Close()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.transport.RemoteAddr()
}

func (c *Conn) LocalAddr() net.Addr {
	return c.transport.LocalAddr()
}
