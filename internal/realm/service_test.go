package realm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/danmuck/reckoning/internal/protocol/codec"
	"github.com/danmuck/reckoning/internal/protocol/session"
	"github.com/danmuck/reckoning/internal/testutil/testlog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func testRealmConfig() Config {
	cfg := DefaultConfig()
	cfg.RealmID = "realm.test"
	cfg.TickLength = 5 * time.Millisecond
	cfg.Session.ReadTimeout = 3 * time.Second
	cfg.Session.WriteTimeout = 3 * time.Second
	cfg.Session.HandshakeTimeout = time.Second
	return cfg
}

func startRealm(t *testing.T, cfg Config) (*Service, string) {
	t.Helper()
	svc := NewService(cfg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() {
		_ = svc.Serve(ctx, ln)
		done <- struct{}{}
	}()
	go func() {
		_ = svc.Simulate(ctx)
		done <- struct{}{}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})
	return svc, ln.Addr().String()
}

func dialRealm(t *testing.T, addr string) *session.Conn {
	t.Helper()
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	cfg := session.DefaultConfig()
	cfg.ReadTimeout = 3 * time.Second
	conn := session.NewConn(raw, codec.New(), cfg)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connect performs the handshake and returns the session id and snapshot.
func connect(t *testing.T, conn *session.Conn) (uuid.UUID, protocol.ServerWorldUpdate) {
	t.Helper()
	if err := conn.WriteOperation(protocol.ClientConnect{}); err != nil {
		t.Fatalf("write connect: %v", err)
	}
	op := mustRead(t, conn)
	resp, ok := op.(protocol.ServerConnectResponse)
	if !ok {
		t.Fatalf("handshake reply = %s, want connect response", op)
	}
	op = mustRead(t, conn)
	snap, ok := op.(protocol.ServerWorldUpdate)
	if !ok {
		t.Fatalf("after connect got %s, want snapshot", op)
	}
	return resp.SessionID, snap
}

func mustRead(t *testing.T, conn *session.Conn) protocol.Operation {
	t.Helper()
	op, err := conn.ReadOperation(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return op
}

// readUntil skips operations until match returns true.
func readUntil(t *testing.T, conn *session.Conn, what string, match func(protocol.Operation) bool) protocol.Operation {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		op := mustRead(t, conn)
		if match(op) {
			return op
		}
		if _, ok := op.(protocol.Disconnect); ok {
			t.Fatalf("disconnected while waiting for %s", what)
		}
	}
	t.Fatalf("timed out waiting for %s", what)
	return nil
}

func entityHas(id uuid.UUID, component protocol.EntityComponent) func(protocol.Operation) bool {
	return func(op protocol.Operation) bool {
		update, ok := op.(protocol.ServerWorldUpdate)
		if !ok {
			return false
		}
		for _, entity := range update.Updates {
			if entity.EntityID != id {
				continue
			}
			for _, c := range entity.Components {
				if c == component {
					return true
				}
			}
		}
		return false
	}
}

func TestRealmSessionLifecycle(t *testing.T) {
	testlog.Start(t)
	svc, addr := startRealm(t, testRealmConfig())

	alice := dialRealm(t, addr)
	aliceID, snap := connect(t, alice)
	if len(snap.Updates) != 0 {
		t.Fatalf("first snapshot has %d entities, want 0", len(snap.Updates))
	}
	readUntil(t, alice, "own spawn", entityHas(aliceID, protocol.Health(100)))

	target := protocol.Vec3{X: 10, Y: 0.5, Z: -3}
	if err := alice.WriteOperation(protocol.ClientMoveSetPosition{Position: target}); err != nil {
		t.Fatalf("write move: %v", err)
	}
	readUntil(t, alice, "moved position", entityHas(aliceID, protocol.Position(target)))

	if err := alice.WriteOperation(protocol.ClientSync{}); err != nil {
		t.Fatalf("write sync: %v", err)
	}
	readUntil(t, alice, "server sync", func(op protocol.Operation) bool {
		_, ok := op.(protocol.ServerSync)
		return ok
	})

	bob := dialRealm(t, addr)
	bobID, bobSnap := connect(t, bob)
	if !entityHas(aliceID, protocol.Position(target))(bobSnap) {
		t.Fatalf("bob snapshot %+v lacks alice at %s", bobSnap, target)
	}
	readUntil(t, alice, "bob spawn", entityHas(bobID, protocol.Health(100)))

	sessions := svc.Sessions()
	if len(sessions) != 2 || sessions[0].ID != aliceID.String() || sessions[0].Moves != 1 {
		t.Fatalf("sessions = %+v", sessions)
	}

	if err := alice.Close(); err != nil {
		t.Fatalf("close alice: %v", err)
	}
	readUntil(t, bob, "alice despawn", entityHas(aliceID, protocol.Health(0)))
}

func TestRealmRejectsMissingHandshake(t *testing.T) {
	testlog.Start(t)
	svc, addr := startRealm(t, testRealmConfig())

	conn := dialRealm(t, addr)
	if err := conn.WriteOperation(protocol.ClientSync{}); err != nil {
		t.Fatalf("write sync: %v", err)
	}
	if op := mustRead(t, conn); op != protocol.Operation(protocol.Disconnect{}) {
		t.Fatalf("got %s, want Disconnect", op)
	}
	if n := len(svc.Sessions()); n != 0 {
		t.Fatalf("sessions = %d, want 0", n)
	}
}

func TestRealmHandshakeTimeout(t *testing.T) {
	testlog.Start(t)
	cfg := testRealmConfig()
	cfg.Session.HandshakeTimeout = 30 * time.Millisecond
	_, addr := startRealm(t, cfg)

	conn := dialRealm(t, addr)
	if op := mustRead(t, conn); op != protocol.Operation(protocol.Disconnect{}) {
		t.Fatalf("got %s, want Disconnect", op)
	}
}

func TestRealmWebSocketSession(t *testing.T) {
	testlog.Start(t)
	svc := NewService(testRealmConfig())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.ServeWebSocket(ctx, ln) }()
	go func() { _ = svc.Simulate(ctx) }()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+WebSocketPath, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn := session.NewConn(session.NewWebSocketTransport(ws), codec.New(), session.DefaultConfig())
	defer conn.Close()

	id, _ := connect(t, conn)
	readUntil(t, conn, "own spawn", entityHas(id, protocol.Health(100)))
	sessions := svc.Sessions()
	if len(sessions) != 1 || sessions[0].Transport != TransportWebSocket {
		t.Fatalf("sessions = %+v", sessions)
	}
}

func TestAdminEndpoints(t *testing.T) {
	testlog.Start(t)
	svc := NewService(testRealmConfig())
	srv := httptest.NewServer(svc.AdminHandler())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/sessions", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.RealmID != "realm.test" || status.Version != Version || status.Sessions != 0 {
		t.Fatalf("status = %+v", status)
	}
}

func TestCheckOrigin(t *testing.T) {
	testlog.Start(t)
	cfg := testRealmConfig()
	cfg.CORSOrigins = []string{"https://play.example"}
	svc := NewService(cfg)

	cases := []struct {
		origin string
		host   string
		want   bool
	}{
		{origin: "", host: "realm:7401", want: true},
		{origin: "https://play.example", host: "realm:7401", want: true},
		{origin: "http://realm:7401", host: "realm:7401", want: true},
		{origin: "https://evil.example", host: "realm:7401", want: false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Host = tc.host
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := svc.checkOrigin(r); got != tc.want {
			t.Fatalf("checkOrigin(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}
}

func TestCloseReason(t *testing.T) {
	testlog.Start(t)
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		ctx  context.Context
		err  error
		want string
	}{
		{ctx: canceled, err: errors.New("x"), want: "shutdown"},
		{ctx: context.Background(), err: session.ErrPendingOverflow, want: "overflow"},
		{ctx: context.Background(), err: &net.OpError{Op: "read", Err: timeoutErr{}}, want: "timeout"},
		{ctx: context.Background(), err: net.ErrClosed, want: "closed"},
		{ctx: context.Background(), err: errors.New("boom"), want: "error"},
	}
	for _, tc := range cases {
		if got := closeReason(tc.ctx, tc.err); got != tc.want {
			t.Fatalf("closeReason(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestAdminTokenGuardsOperatorRoutes(t *testing.T) {
	testlog.Start(t)
	cfg := testRealmConfig()
	cfg.AdminToken = "ops-token"
	srv := httptest.NewServer(NewService(cfg).AdminHandler())
	defer srv.Close()

	get := func(path, token string) int {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := get("/healthz", ""); code != http.StatusOK {
		t.Fatalf("healthz without token = %d, want 200", code)
	}
	if code := get("/status", ""); code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", code)
	}
	if code := get("/sessions", "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("sessions with wrong token = %d, want 401", code)
	}
	if code := get("/status", "ops-token"); code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", code)
	}
}
