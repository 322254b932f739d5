package realm

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/reckoning/internal/auth"
	"github.com/danmuck/reckoning/internal/observability"
	"github.com/danmuck/reckoning/internal/simulation"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Status is the admin view of the realm.
type Status struct {
	RealmID    string            `json:"realm_id"`
	Version    string            `json:"version"`
	Uptime     string            `json:"uptime"`
	Sessions   int               `json:"sessions"`
	Simulation simulation.Status `json:"simulation"`
}

func (s *Service) Status() Status {
	s.sessionsMu.RLock()
	n := len(s.sessions)
	s.sessionsMu.RUnlock()
	return Status{
		RealmID:    s.cfg.RealmID,
		Version:    Version,
		Uptime:     time.Since(s.started).Truncate(time.Second).String(),
		Sessions:   n,
		Simulation: s.sim.Status(),
	}
}

// AdminHandler builds the admin HTTP API. When AdminToken is set every route
// but /healthz requires it as a bearer token.
func (s *Service) AdminHandler() http.Handler {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminMiddleware(s.cfg.RealmID, log.Logger)...)
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"realm":  s.cfg.RealmID,
		})
	})

	ops := r.Group("/")
	if token := strings.TrimSpace(s.cfg.AdminToken); token != "" {
		ops.Use(auth.RequireBearer(auth.StaticToken{Token: token}))
	}
	ops.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Status())
	})
	ops.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": s.Sessions()})
	})
	ops.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// ServeAdmin serves AdminHandler on ln until ctx is done.
func (s *Service) ServeAdmin(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.AdminHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return serveHTTP(ctx, srv, ln, nil)
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}

func sortSessions(in []SessionInfo) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].ConnectedAt.Equal(in[j].ConnectedAt) {
			return in[i].ID < in[j].ID
		}
		return in[i].ConnectedAt.Before(in[j].ConnectedAt)
	})
}
