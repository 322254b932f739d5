// Package client is a minimal realm client used by the probe command and tests.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/danmuck/reckoning/internal/protocol/codec"
	"github.com/danmuck/reckoning/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired  = errors.New("client: address required")
	ErrHandshakeFailed  = errors.New("client: handshake failed")
	ErrHandshakeTimeout = errors.New("client: handshake timeout")
)

type Config struct {
	// Addr is a host:port for TCP/TLS, or a ws:// or wss:// URL.
	Addr               string
	MaxConnectAttempts int
	Session            session.Config
}

func DefaultConfig() Config {
	return Config{
		Addr:               "127.0.0.1:7400",
		MaxConnectAttempts: 5,
		Session:            session.DefaultConfig(),
	}
}

// Client is one connected realm session.
type Client struct {
	SessionID uuid.UUID

	cfg  Config
	conn *session.Conn
}

// Dial connects to the realm and completes the handshake, retrying with
// backoff up to MaxConnectAttempts (zero retries forever).
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, ErrAddressRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	c := codec.New()

	var attempt int
	for {
		attempt++
		t, err := dial(ctx, cfg)
		if err == nil {
			conn := session.NewConn(t, c, cfg.Session)
			id, herr := handshake(ctx, conn, cfg.Session.HandshakeTimeout)
			if herr == nil {
				log.Info().
					Str("addr", cfg.Addr).
					Stringer("session", id).
					Int("attempt", attempt).
					Msg("client.Dial connected")
				return &Client{SessionID: id, cfg: cfg, conn: conn}, nil
			}
			_ = conn.Close()
			err = herr
		}
		log.Warn().Err(err).Int("attempt", attempt).Str("addr", cfg.Addr).Msg("client.Dial attempt failed")
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, err
		}
		if err := sleepBackoff(ctx, cfg.Session.Backoff, attempt, rng); err != nil {
			return nil, err
		}
	}
}

func dial(ctx context.Context, cfg Config) (session.Transport, error) {
	if strings.HasPrefix(cfg.Addr, "ws://") || strings.HasPrefix(cfg.Addr, "wss://") {
		dialer := websocket.Dialer{HandshakeTimeout: cfg.Session.ConnectTimeout}
		if strings.HasPrefix(cfg.Addr, "wss://") {
			tlsCfg, err := cfg.Session.ClientTLSConfig(hostPort(cfg.Addr))
			if err != nil {
				return nil, err
			}
			dialer.TLSClientConfig = tlsCfg
		}
		ws, _, err := dialer.DialContext(ctx, cfg.Addr, nil)
		if err != nil {
			return nil, err
		}
		return session.NewWebSocketTransport(ws), nil
	}

	if err := cfg.Session.ValidateClientTransport(); err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: cfg.Session.ConnectTimeout}
	raw, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	if !cfg.Session.TLS.Enabled {
		return raw, nil
	}
	tlsCfg, err := cfg.Session.ClientTLSConfig(cfg.Addr)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	conn := tls.Client(raw, tlsCfg)
	hsCtx, cancel := context.WithTimeout(ctx, cfg.Session.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(hsCtx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return conn, nil
}

func handshake(ctx context.Context, conn *session.Conn, timeout time.Duration) (uuid.UUID, error) {
	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		_ = conn.Close()
	})
	defer timer.Stop()

	if err := conn.WriteOperation(protocol.ClientConnect{}); err != nil {
		return uuid.Nil, err
	}
	op, err := conn.ReadOperation(ctx)
	if timedOut.Load() {
		return uuid.Nil, ErrHandshakeTimeout
	}
	if err != nil {
		return uuid.Nil, err
	}
	resp, ok := op.(protocol.ServerConnectResponse)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: got %s", ErrHandshakeFailed, op)
	}
	return resp.SessionID, nil
}

func sleepBackoff(ctx context.Context, b session.BackoffConfig, attempt int, rng *rand.Rand) error {
	timer := time.NewTimer(b.Delay(attempt, rng))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func hostPort(rawURL string) string {
	rest := rawURL[strings.Index(rawURL, "://")+3:]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if _, _, err := net.SplitHostPort(rest); err != nil {
		return net.JoinHostPort(rest, "443")
	}
	return rest
}

// Next returns the next operation from the realm.
func (c *Client) Next(ctx context.Context) (protocol.Operation, error) {
	return c.conn.ReadOperation(ctx)
}

func (c *Client) Move(position protocol.Vec3) error {
	return c.conn.WriteOperation(protocol.ClientMoveSetPosition{Position: position})
}

func (c *Client) Sync() error {
	return c.conn.WriteOperation(protocol.ClientSync{})
}

// KeepAlive sends ClientSync every heartbeat interval until ctx is done or a
// write fails.
func (c *Client) KeepAlive(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Session.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Sync(); err != nil {
				return err
			}
		}
	}
}

func (c *Client) Stats() session.ConnStats {
	return c.conn.Stats()
}

func (c *Client) Close() error {
	return c.conn.Close()
}
