package realm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/danmuck/reckoning/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// WebSocketPath is where game clients upgrade.
const WebSocketPath = "/ws"

// ServeWebSocket accepts game sessions over WebSocket on ln until ctx is done.
func (s *Service) ServeWebSocket(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, s.handleWebSocket)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: s.cfg.Session.HandshakeTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	return serveHTTP(ctx, srv, ln, s.closeAllConns)
}

func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("realm.Service.handleWebSocket upgrade failed")
		return
	}
	ws.SetReadLimit(int64(s.cfg.Session.MaxPendingBytes))
	s.handle(r.Context(), session.NewWebSocketTransport(ws), TransportWebSocket)
}

// checkOrigin allows requests without an Origin header, same-host origins,
// and any origin listed in CORSOrigins.
func (s *Service) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.cfg.CORSOrigins, "*") || slices.Contains(s.cfg.CORSOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// serveHTTP runs srv on ln and shuts it down when ctx is done. onStop runs
// after shutdown for connections the server no longer owns.
func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener, onStop func()) error {
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if onStop != nil {
		onStop()
	}
	<-errc
	return err
}
