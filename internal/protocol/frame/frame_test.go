package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/reckoning/internal/protocol"
)

func TestWriteReadHeaderRoundTrip(t *testing.T) {
	in := Header{Size: 0x1234, Opcode: protocol.OpServerWorldUpdate}
	buf := WriteHeader(nil, in)
	if len(buf) != HeaderLen {
		t.Fatalf("unexpected header length: %d", len(buf))
	}
	want := []byte{0xEC, 0xAA, 0x34, 0x12, byte(protocol.OpServerWorldUpdate), 0, 0, 0}
	if !bytes.Equal(buf, want) {
		t.Fatalf("header bytes mismatch: got=% x want=% x", buf, want)
	}
	out, err := ReadHeader(buf)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if out != in {
		t.Fatalf("header mismatch: got=%+v want=%+v", out, in)
	}
	if out.FrameLen() != HeaderLen+0x1234 {
		t.Fatalf("unexpected frame length: %d", out.FrameLen())
	}
}

func TestWriteHeaderAppends(t *testing.T) {
	prefix := []byte{1, 2, 3}
	buf := WriteHeader(prefix, Header{Opcode: protocol.OpClientConnect})
	if len(buf) != len(prefix)+HeaderLen {
		t.Fatalf("unexpected length: %d", len(buf))
	}
	if !bytes.Equal(buf[:3], []byte{1, 2, 3}) {
		t.Fatalf("prefix clobbered: % x", buf[:3])
	}
}

func TestReadHeaderIgnoresPadding(t *testing.T) {
	buf := []byte{0xEC, 0xAA, 0x00, 0x00, byte(protocol.OpClientConnect), 0xFF, 0xFF, 0xFF}
	h, err := ReadHeader(buf)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if h.Opcode != protocol.OpClientConnect || h.Size != 0 {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestReadHeaderShortIsIncomplete(t *testing.T) {
	for n := 0; n < HeaderLen; n++ {
		buf := WriteHeader(nil, Header{Size: 4, Opcode: protocol.OpClientConnect})[:n]
		_, err := ReadHeader(buf)
		if !errors.Is(err, protocol.ErrIncomplete) {
			t.Fatalf("len=%d: expected ErrIncomplete, got %v", n, err)
		}
	}
}

func TestReadHeaderBadMagic(t *testing.T) {
	buf := []byte{0xEC, 0xAB, 0, 0, 0, 0, 0, 0}
	_, err := ReadHeader(buf)
	if !errors.Is(err, protocol.ErrBadData) {
		t.Fatalf("expected ErrBadData, got %v", err)
	}
}

func TestFind(t *testing.T) {
	cases := []struct {
		name   string
		in     []byte
		offset int
		ok     bool
	}{
		{name: "empty", in: nil},
		{name: "aligned", in: []byte{0xEC, 0xAA, 0x00}, offset: 0, ok: true},
		{name: "garbage prefix", in: []byte{0x01, 0x02, 0xEC, 0xAA}, offset: 2, ok: true},
		{name: "false start", in: []byte{0xEC, 0xEC, 0xAA}, offset: 1, ok: true},
		{name: "partial tail", in: []byte{0x01, 0x02, 0xEC}},
		{name: "no magic", in: []byte{0xAA, 0xEC, 0x00}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			offset, ok := Find(tc.in)
			if ok != tc.ok || (ok && offset != tc.offset) {
				t.Fatalf("find mismatch: got=(%d,%v) want=(%d,%v)", offset, ok, tc.offset, tc.ok)
			}
		})
	}
}

func TestFindCompletesAcrossChunks(t *testing.T) {
	buf := []byte{0x10, 0x20, 0xEC}
	if _, ok := Find(buf); ok {
		t.Fatalf("partial magic reported as match")
	}
	buf = append(buf, 0xAA)
	offset, ok := Find(buf)
	if !ok || offset != 2 {
		t.Fatalf("expected match at 2, got=(%d,%v)", offset, ok)
	}
}
