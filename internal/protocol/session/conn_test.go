package session

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/danmuck/reckoning/internal/protocol/codec"
	"github.com/danmuck/reckoning/internal/testutil/testlog"
	"github.com/danmuck/reckoning/internal/testutil/tlstest"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	return cfg
}

func pipePair(t *testing.T, cfg Config) (*Conn, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})
	return NewConn(local, codec.New(), cfg), remote
}

func mustFrame(t *testing.T, op protocol.Operation) []byte {
	t.Helper()
	b, err := codec.New().Append(nil, op)
	if err != nil {
		t.Fatalf("encode %s: %v", op, err)
	}
	return b
}

func TestConnReadsFramesDeliveredByteByByte(t *testing.T) {
	testlog.Start(t)
	conn, remote := pipePair(t, testConfig())

	move := protocol.ClientMoveSetPosition{Position: protocol.Vec3{X: 1.5, Y: -2, Z: 8}}
	raw := append(mustFrame(t, protocol.ClientSync{}), mustFrame(t, move)...)
	go func() {
		for i := range raw {
			if _, err := remote.Write(raw[i : i+1]); err != nil {
				return
			}
		}
	}()

	ctx := context.Background()
	first, err := conn.ReadOperation(ctx)
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	if _, ok := first.(protocol.ClientSync); !ok {
		t.Fatalf("first = %s, want ClientSync", first)
	}
	second, err := conn.ReadOperation(ctx)
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if got, ok := second.(protocol.ClientMoveSetPosition); !ok || got != move {
		t.Fatalf("second = %s, want %s", second, move)
	}
	if stats := conn.Stats(); stats.BytesIn != uint64(len(raw)) || stats.PendingBytes != 0 {
		t.Fatalf("stats = %+v, want %d bytes in and nothing pending", stats, len(raw))
	}
}

func TestConnSkipsGarbageBetweenFrames(t *testing.T) {
	testlog.Start(t)
	conn, remote := pipePair(t, testConfig())

	id := uuid.New()
	raw := []byte{0x13, 0x37, 0xEC}
	raw = append(raw, mustFrame(t, protocol.ServerConnectResponse{SessionID: id})...)
	go func() { _, _ = remote.Write(raw) }()

	op, err := conn.ReadOperation(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got, ok := op.(protocol.ServerConnectResponse); !ok || got.SessionID != id {
		t.Fatalf("op = %s, want connect response %s", op, id)
	}
}

func TestConnEndOfStreamYieldsDisconnect(t *testing.T) {
	testlog.Start(t)
	conn, remote := pipePair(t, testConfig())

	partial := mustFrame(t, protocol.ClientMoveSetPosition{})[:10]
	go func() {
		_, _ = remote.Write(partial)
		_ = remote.Close()
	}()

	op, err := conn.ReadOperation(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, ok := op.(protocol.Disconnect); !ok {
		t.Fatalf("op = %s, want Disconnect", op)
	}
	again, err := conn.ReadOperation(context.Background())
	if err != nil {
		t.Fatalf("read after disconnect: %v", err)
	}
	if _, ok := again.(protocol.Disconnect); !ok {
		t.Fatalf("op after disconnect = %s, want Disconnect", again)
	}
}

func TestConnPendingOverflow(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.MaxPendingBytes = MinPendingBytes
	cfg.ReadChunkSize = 4096
	conn, remote := pipePair(t, cfg)

	go func() { _, _ = remote.Write(make([]byte, MinPendingBytes+8192)) }()

	_, err := conn.ReadOperation(context.Background())
	if !errors.Is(err, ErrPendingOverflow) {
		t.Fatalf("err = %v, want ErrPendingOverflow", err)
	}
}

func TestConnSmallPendingLimitStillDecodesFrames(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.MaxPendingBytes = 32
	cfg.ReadChunkSize = 16
	conn, remote := pipePair(t, cfg)

	update := protocol.ServerWorldUpdate{Updates: []protocol.EntityUpdate{{
		EntityID:   uuid.New(),
		Components: []protocol.EntityComponent{protocol.Health(40), protocol.Position{X: 1, Y: 2, Z: 3}},
	}}}
	raw := mustFrame(t, update)
	if len(raw) <= 32 {
		t.Fatalf("frame len = %d, want more than the configured limit", len(raw))
	}
	go func() { _, _ = remote.Write(raw) }()

	op, err := conn.ReadOperation(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, ok := op.(protocol.ServerWorldUpdate)
	if !ok || !got.Equal(update) {
		t.Fatalf("op = %s, want %s", op, update)
	}
}

func TestConnWriteNilOperationFails(t *testing.T) {
	testlog.Start(t)
	conn, _ := pipePair(t, testConfig())

	if err := conn.WriteOperation(nil); !errors.Is(err, protocol.ErrInvalidOpcode) {
		t.Fatalf("err = %v, want ErrInvalidOpcode", err)
	}
	if st := conn.Stats(); st.BytesOut != 0 {
		t.Fatalf("bytes out = %d, want 0", st.BytesOut)
	}
}

func TestConnLogsDroppedPartialFrameAsFields(t *testing.T) {
	testlog.Start(t)
	var logs bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&logs)
	t.Cleanup(func() { log.Logger = prev })

	conn, remote := pipePair(t, testConfig())
	partial := mustFrame(t, protocol.ClientMoveSetPosition{Position: protocol.Vec3{X: 1}})[:10]
	go func() {
		_, _ = remote.Write(partial)
		_ = remote.Close()
	}()

	op, err := conn.ReadOperation(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, ok := op.(protocol.Disconnect); !ok {
		t.Fatalf("op = %s, want Disconnect", op)
	}
	line := logs.String()
	if !strings.Contains(line, `"dropped_partial":10`) || !strings.Contains(line, `"remote":`) {
		t.Fatalf("log line missing structured fields: %s", line)
	}
}

func TestConnReadHonorsCanceledContext(t *testing.T) {
	testlog.Start(t)
	conn, _ := pipePair(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := conn.ReadOperation(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestConnReadTimeout(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.ReadTimeout = 20 * time.Millisecond
	conn, _ := pipePair(t, cfg)

	_, err := conn.ReadOperation(context.Background())
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestConnWriteRejectsDisconnect(t *testing.T) {
	testlog.Start(t)
	conn, _ := pipePair(t, testConfig())

	if err := conn.WriteOperation(protocol.Disconnect{}); !errors.Is(err, protocol.ErrInvalidOpcode) {
		t.Fatalf("err = %v, want ErrInvalidOpcode", err)
	}
}

func TestConnMutualTLSRoundTrip(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "reckoning-test-ca")
	server := ca.LocalServer(t, "realm")
	client := ca.Client(t, "probe")

	serverCfg := testConfig()
	serverCfg.SecurityMode = SecurityModeProduction
	serverCfg.TLS = TLSConfig{Enabled: true, Mutual: true, CertFile: server.CertFile, KeyFile: server.KeyFile, CAFile: ca.CAFile()}
	if err := serverCfg.ValidateServerTransport(); err != nil {
		t.Fatalf("validate server: %v", err)
	}
	serverTLS, err := serverCfg.ServerTLSConfig()
	if err != nil {
		t.Fatalf("server tls: %v", err)
	}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverTLS)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	done := make(chan error, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		peer := NewConn(raw, codec.New(), serverCfg)
		defer peer.Close()
		op, err := peer.ReadOperation(context.Background())
		if err != nil {
			done <- err
			return
		}
		if _, ok := op.(protocol.ClientConnect); !ok {
			done <- errors.New("expected ClientConnect, got " + op.String())
			return
		}
		done <- peer.WriteOperation(protocol.ServerSync{})
	}()

	clientCfg := testConfig()
	clientCfg.SecurityMode = SecurityModeProduction
	clientCfg.TLS = TLSConfig{Enabled: true, Mutual: true, CertFile: client.CertFile, KeyFile: client.KeyFile, CAFile: ca.CAFile()}
	if err := clientCfg.ValidateClientTransport(); err != nil {
		t.Fatalf("validate client: %v", err)
	}
	clientTLS, err := clientCfg.ClientTLSConfig(ln.Addr().String())
	if err != nil {
		t.Fatalf("client tls: %v", err)
	}
	raw, err := tls.Dial("tcp", ln.Addr().String(), clientTLS)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn := NewConn(raw, codec.New(), clientCfg)
	defer conn.Close()

	if err := conn.WriteOperation(protocol.ClientConnect{}); err != nil {
		t.Fatalf("write connect: %v", err)
	}
	op, err := conn.ReadOperation(context.Background())
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if _, ok := op.(protocol.ServerSync); !ok {
		t.Fatalf("reply = %s, want ServerSync", op)
	}
	if err := <-done; err != nil {
		t.Fatalf("server side: %v", err)
	}
}
