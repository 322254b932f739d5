package realm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/reckoning/internal/observability"
	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/danmuck/reckoning/internal/protocol/codec"
	"github.com/danmuck/reckoning/internal/protocol/frame"
	"github.com/danmuck/reckoning/internal/protocol/session"
	"github.com/danmuck/reckoning/internal/simulation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrHandshakeRequired = errors.New("realm: first operation must be client connect")
	ErrHandshakeTimeout  = errors.New("realm: handshake timeout")
)

// Session is one connected client and the entity it controls.
type Session struct {
	ID          uuid.UUID
	Transport   string
	RemoteAddr  string
	ConnectedAt time.Time

	conn     *session.Conn
	outbox   *session.Outbox
	lastSeen atomic.Int64
	moves    atomic.Uint64
	syncs    atomic.Uint64
}

// SessionInfo is the admin view of a Session.
type SessionInfo struct {
	ID          string    `json:"id"`
	Transport   string    `json:"transport"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
	Moves       uint64    `json:"moves"`
	Syncs       uint64    `json:"syncs"`
	BytesIn     uint64    `json:"bytes_in"`
	BytesOut    uint64    `json:"bytes_out"`
	Queued      int       `json:"queued"`
	Dropped     uint64    `json:"dropped"`
}

func (sess *Session) touch() {
	sess.lastSeen.Store(time.Now().UnixNano())
}

func (sess *Session) enqueue(op protocol.Operation) {
	dropped, err := sess.outbox.Push(op)
	if err != nil {
		return
	}
	if dropped {
		observability.RecordOutboxDrop()
		log.Debug().Stringer("session", sess.ID).Msg("realm.Session.enqueue dropped world update")
	}
}

func (sess *Session) Info() SessionInfo {
	stats := sess.conn.Stats()
	return SessionInfo{
		ID:          sess.ID.String(),
		Transport:   sess.Transport,
		RemoteAddr:  sess.RemoteAddr,
		ConnectedAt: sess.ConnectedAt,
		LastSeen:    time.Unix(0, sess.lastSeen.Load()),
		Moves:       sess.moves.Load(),
		Syncs:       sess.syncs.Load(),
		BytesIn:     stats.BytesIn,
		BytesOut:    stats.BytesOut,
		Queued:      sess.outbox.Len(),
		Dropped:     sess.outbox.Dropped(),
	}
}

// Sessions returns the connected sessions ordered by connect time.
func (s *Service) Sessions() []SessionInfo {
	s.sessionsMu.RLock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Info())
	}
	s.sessionsMu.RUnlock()
	sortSessions(out)
	return out
}

// handle runs one connection from handshake to close.
func (s *Service) handle(ctx context.Context, t session.Transport, transport string) {
	s.trackConn(t)
	defer s.untrackConn(t)
	conn := session.NewConn(t, s.codec, s.cfg.Session)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	ctx, span := observability.StartSessionSpan(ctx, transport, remote)
	var runErr error
	defer func() { observability.EndSpan(span, runErr) }()

	sess, err := s.handshake(ctx, conn, transport)
	if err != nil {
		runErr = err
		log.Warn().
			Err(err).
			Str("remote", remote).
			Str("transport", transport).
			Msg("realm.Service.handle handshake failed")
		return
	}
	observability.RecordSessionOpened(transport)
	log.Info().
		Stringer("session", sess.ID).
		Str("remote", remote).
		Str("transport", transport).
		Msg("realm.Service.handle connected")

	writeCtx, stopWriter := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(writeCtx, sess)
	}()

	reason, err := s.readLoop(ctx, sess)
	runErr = err
	sess.outbox.Close()
	stopWriter()
	wg.Wait()

	s.unregister(sess)
	s.sim.PushEvent(simulation.Leave{Session: sess.ID})
	observability.RecordSessionClosed(transport, reason)
	event := log.Info()
	if reason == "error" {
		event = log.Warn().Err(err)
	}
	event.
		Stringer("session", sess.ID).
		Str("reason", reason).
		Msg("realm.Service.handle closed")
}

// handshake expects ClientConnect, answers with the session id and the
// current world, and registers the session so it receives broadcasts.
func (s *Service) handshake(ctx context.Context, conn *session.Conn, transport string) (*Session, error) {
	var timedOut atomic.Bool
	timer := time.AfterFunc(s.cfg.Session.HandshakeTimeout, func() {
		timedOut.Store(true)
		_ = conn.Close()
	})
	defer timer.Stop()

	op, err := conn.ReadOperation(ctx)
	if timedOut.Load() {
		return nil, ErrHandshakeTimeout
	}
	if err != nil {
		return nil, err
	}
	if _, ok := op.(protocol.ClientConnect); !ok {
		return nil, fmt.Errorf("%w: got %s", ErrHandshakeRequired, op)
	}

	sess := &Session{
		ID:          uuid.New(),
		Transport:   transport,
		RemoteAddr:  conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		conn:        conn,
		outbox:      session.NewOutbox(s.cfg.Session.SendQueue),
	}
	sess.touch()
	if err := conn.WriteOperation(protocol.ServerConnectResponse{SessionID: sess.ID}); err != nil {
		return nil, err
	}

	// Register before the snapshot so no tick between the two is lost.
	s.register(sess)
	parts, err := codec.SplitWorldUpdate(s.sim.Snapshot(), frame.MaxPayloadLen)
	if err == nil {
		for _, part := range parts {
			if err = conn.WriteOperation(part); err != nil {
				break
			}
		}
	}
	if err != nil {
		s.unregister(sess)
		return nil, err
	}
	s.sim.PushEvent(simulation.Join{Session: sess.ID})
	return sess, nil
}

func (s *Service) readLoop(ctx context.Context, sess *Session) (string, error) {
	for {
		op, err := sess.conn.ReadOperation(ctx)
		if err != nil {
			return closeReason(ctx, err), err
		}
		sess.touch()

		switch op := op.(type) {
		case protocol.Disconnect:
			return "disconnect", nil
		case protocol.ClientSync:
			sess.syncs.Add(1)
			sess.enqueue(protocol.ServerSync{})
		case protocol.ClientMoveSetPosition:
			sess.moves.Add(1)
			s.sim.PushEvent(simulation.Move{Session: sess.ID, Position: op.Position})
		default:
			log.Debug().
				Stringer("session", sess.ID).
				Stringer("op", op).
				Msg("realm.Service.readLoop ignored operation")
		}
	}
}

func (s *Service) writeLoop(ctx context.Context, sess *Session) {
	for {
		op, err := sess.outbox.Pop(ctx)
		if err != nil {
			return
		}
		if err := sess.conn.WriteOperation(op); err != nil {
			log.Debug().Err(err).Stringer("session", sess.ID).Msg("realm.Service.writeLoop write failed")
			_ = sess.conn.Close()
			return
		}
	}
}

func closeReason(ctx context.Context, err error) string {
	var netErr net.Error
	switch {
	case ctx.Err() != nil:
		return "shutdown"
	case errors.Is(err, session.ErrPendingOverflow):
		return "overflow"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return "closed"
	default:
		return "error"
	}
}
