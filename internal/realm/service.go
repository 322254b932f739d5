package realm

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/reckoning/internal/observability"
	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/danmuck/reckoning/internal/protocol/codec"
	"github.com/danmuck/reckoning/internal/protocol/frame"
	"github.com/danmuck/reckoning/internal/protocol/session"
	"github.com/danmuck/reckoning/internal/simulation"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Version is reported by the admin API.
var Version = "0.1.0"

const (
	TransportTCP       = "tcp"
	TransportTLS       = "tls"
	TransportWebSocket = "websocket"
)

// Realm endpoint configuration.
type Config struct {
	RealmID       string
	ListenAddr    string
	WebSocketAddr string
	AdminAddr     string
	AdminToken    string
	CORSOrigins   []string
	TickLength    time.Duration
	Session       session.Config
	Simulation    simulation.Config
}

func DefaultConfig() Config {
	return Config{
		RealmID:    "realm.local",
		ListenAddr: "127.0.0.1:7400",
		TickLength: 50 * time.Millisecond,
		Session:    session.DefaultConfig(),
		Simulation: simulation.DefaultConfig(),
	}
}

// Service owns the simulation and every connected session.
type Service struct {
	cfg      Config
	codec    codec.Codec
	sim      *simulation.Simulation
	upgrader websocket.Upgrader
	started  time.Time

	sessionsMu sync.RWMutex
	sessions   map[uuid.UUID]*Session

	connsMu sync.Mutex
	conns   map[io.Closer]struct{}
}

func NewService(cfg Config) *Service {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.RealmID) == "" {
		cfg.RealmID = def.RealmID
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.TickLength <= 0 {
		cfg.TickLength = def.TickLength
	}
	cfg.Session = cfg.Session.WithDefaults()

	s := &Service{
		cfg:      cfg,
		codec:    codec.New(codec.WithObserver(observability.NewCodecMetrics())),
		sim:      simulation.New(cfg.Simulation, simulation.WithObserver(observability.NewSimulationMetrics())),
		started:  time.Now(),
		sessions: make(map[uuid.UUID]*Session),
		conns:    make(map[io.Closer]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.Session.ReadChunkSize,
		WriteBufferSize: cfg.Session.ReadChunkSize,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Service) Simulation() *simulation.Simulation {
	return s.sim
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext starts the simulation and every configured endpoint, and
// returns when ctx is done or any of them fails.
func (s *Service) RunContext(ctx context.Context) error {
	if err := s.cfg.Session.ValidateServerTransport(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := s.listen()
	if err != nil {
		return err
	}
	log.Info().
		Str("realm", s.cfg.RealmID).
		Stringer("addr", ln.Addr()).
		Bool("tls", s.cfg.Session.TLS.Enabled).
		Msg("realm.Service.Run listening")

	errs := make(chan error, 4)
	var wg sync.WaitGroup
	start := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.Error().Err(err).Str("component", name).Msg("realm.Service.Run component failed")
				errs <- err
			}
		}()
	}

	start("simulation", func() error { return s.Simulate(ctx) })
	start("session", func() error { return s.Serve(ctx, ln) })
	if addr := strings.TrimSpace(s.cfg.WebSocketAddr); addr != "" {
		wsLn, err := net.Listen("tcp", addr)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		log.Info().Stringer("addr", wsLn.Addr()).Msg("realm.Service.Run websocket listening")
		start("websocket", func() error { return s.ServeWebSocket(ctx, wsLn) })
	}
	if addr := strings.TrimSpace(s.cfg.AdminAddr); addr != "" {
		adminLn, err := net.Listen("tcp", addr)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		log.Info().Stringer("addr", adminLn.Addr()).Msg("realm.Service.Run admin listening")
		start("admin", func() error { return s.ServeAdmin(ctx, adminLn) })
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}
	cancel()
	wg.Wait()
	log.Info().Str("realm", s.cfg.RealmID).Msg("realm.Service.Run stopped")
	return runErr
}

// Simulate ticks the simulation and broadcasts every update until ctx is done.
func (s *Service) Simulate(ctx context.Context) error {
	return s.sim.Run(ctx, s.cfg.TickLength, s.Broadcast)
}

func (s *Service) listen() (net.Listener, error) {
	if !s.cfg.Session.TLS.Enabled {
		return net.Listen("tcp", s.cfg.ListenAddr)
	}
	tlsCfg, err := s.cfg.Session.ServerTLSConfig()
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", s.cfg.ListenAddr, tlsCfg)
}

// Serve accepts game sessions on ln until ctx is done.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	transport := TransportTCP
	if s.cfg.Session.TLS.Enabled {
		transport = TransportTLS
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handle(ctx, conn, transport)
	}
}

// Broadcast queues update on every session, split to fit the frame size.
func (s *Service) Broadcast(_ context.Context, update protocol.ServerWorldUpdate) {
	parts, err := codec.SplitWorldUpdate(update, frame.MaxPayloadLen)
	if err != nil {
		log.Error().Err(err).Msg("realm.Service.Broadcast split failed")
		return
	}
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	for _, sess := range s.sessions {
		for _, part := range parts {
			sess.enqueue(part)
		}
	}
}

func (s *Service) register(sess *Session) {
	s.sessionsMu.Lock()
	s.sessions[sess.ID] = sess
	s.sessionsMu.Unlock()
}

func (s *Service) unregister(sess *Session) {
	s.sessionsMu.Lock()
	delete(s.sessions, sess.ID)
	s.sessionsMu.Unlock()
}

func (s *Service) trackConn(c io.Closer) {
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Service) untrackConn(c io.Closer) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}
