package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/reckoning/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

type fileConfig struct {
	SecurityMode string         `toml:"security_mode"`
	Server       fileServer     `toml:"server"`
	Session      fileSession    `toml:"session"`
	Simulation   fileSimulation `toml:"simulation"`
	Logging      fileLogging    `toml:"logging"`
	Client       fileClient     `toml:"client"`
}

type fileServer struct {
	RealmID       string   `toml:"realm_id"`
	ListenAddr    string   `toml:"listen_addr"`
	WebSocketAddr string   `toml:"websocket_addr"`
	AdminAddr     string   `toml:"admin_addr"`
	AdminToken    string   `toml:"admin_token"`
	CORSOrigins   []string `toml:"cors_origins"`
}

type fileSession struct {
	ConnectTimeout    string  `toml:"connect_timeout"`
	HandshakeTimeout  string  `toml:"handshake_timeout"`
	ReadTimeout       string  `toml:"read_timeout"`
	WriteTimeout      string  `toml:"write_timeout"`
	HeartbeatInterval string  `toml:"heartbeat_interval"`
	MaxPendingBytes   int     `toml:"max_pending_bytes"`
	ReadChunkSize     int     `toml:"read_chunk_size"`
	SendQueue         int     `toml:"send_queue"`
	TLS               fileTLS `toml:"tls"`
}

type fileTLS struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type fileSimulation struct {
	TickLength  string `toml:"tick_length"`
	SpawnHealth uint64 `toml:"spawn_health"`
}

type fileLogging struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type fileClient struct {
	Addr               string `toml:"addr"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
	BackoffInitial     string `toml:"backoff_initial"`
	BackoffMax         string `toml:"backoff_max"`
}

// Load decodes path over Default. Keys absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load realm config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		log.Warn().Str("path", path).Interface("keys", undecoded).Msg("config.Load unknown keys")
	}

	o := overlay{meta: meta}
	if meta.IsDefined("security_mode") {
		cfg.Session.SecurityMode = session.NormalizeSecurityMode(session.SecurityMode(raw.SecurityMode))
	}

	o.str(&cfg.Server.RealmID, raw.Server.RealmID, "server", "realm_id")
	o.str(&cfg.Server.ListenAddr, raw.Server.ListenAddr, "server", "listen_addr")
	o.str(&cfg.Server.WebSocketAddr, raw.Server.WebSocketAddr, "server", "websocket_addr")
	o.str(&cfg.Server.AdminAddr, raw.Server.AdminAddr, "server", "admin_addr")
	o.str(&cfg.Server.AdminToken, raw.Server.AdminToken, "server", "admin_token")
	if meta.IsDefined("server", "cors_origins") {
		cfg.Server.CORSOrigins = normalizeList(raw.Server.CORSOrigins)
	}

	o.duration(&cfg.Session.ConnectTimeout, raw.Session.ConnectTimeout, "session", "connect_timeout")
	o.duration(&cfg.Session.HandshakeTimeout, raw.Session.HandshakeTimeout, "session", "handshake_timeout")
	o.duration(&cfg.Session.ReadTimeout, raw.Session.ReadTimeout, "session", "read_timeout")
	o.duration(&cfg.Session.WriteTimeout, raw.Session.WriteTimeout, "session", "write_timeout")
	o.duration(&cfg.Session.HeartbeatInterval, raw.Session.HeartbeatInterval, "session", "heartbeat_interval")
	o.integer(&cfg.Session.MaxPendingBytes, raw.Session.MaxPendingBytes, "session", "max_pending_bytes")
	o.integer(&cfg.Session.ReadChunkSize, raw.Session.ReadChunkSize, "session", "read_chunk_size")
	o.integer(&cfg.Session.SendQueue, raw.Session.SendQueue, "session", "send_queue")

	tls := &cfg.Session.TLS
	o.boolean(&tls.Enabled, raw.Session.TLS.Enabled, "session", "tls", "enabled")
	o.boolean(&tls.Mutual, raw.Session.TLS.Mutual, "session", "tls", "mutual")
	o.str(&tls.CertFile, raw.Session.TLS.CertFile, "session", "tls", "cert_file")
	o.str(&tls.KeyFile, raw.Session.TLS.KeyFile, "session", "tls", "key_file")
	o.str(&tls.CAFile, raw.Session.TLS.CAFile, "session", "tls", "ca_file")
	o.str(&tls.ServerName, raw.Session.TLS.ServerName, "session", "tls", "server_name")
	o.boolean(&tls.InsecureSkipVerify, raw.Session.TLS.InsecureSkipVerify, "session", "tls", "insecure_skip_verify")

	o.duration(&cfg.Simulation.TickLength, raw.Simulation.TickLength, "simulation", "tick_length")
	if meta.IsDefined("simulation", "spawn_health") {
		cfg.Simulation.SpawnHealth = raw.Simulation.SpawnHealth
	}

	o.str(&cfg.Logging.Level, raw.Logging.Level, "logging", "level")
	o.str(&cfg.Logging.File, raw.Logging.File, "logging", "file")

	o.str(&cfg.Client.Addr, raw.Client.Addr, "client", "addr")
	o.integer(&cfg.Client.MaxConnectAttempts, raw.Client.MaxConnectAttempts, "client", "max_connect_attempts")
	o.duration(&cfg.Session.Backoff.InitialDelay, raw.Client.BackoffInitial, "client", "backoff_initial")
	o.duration(&cfg.Session.Backoff.MaxDelay, raw.Client.BackoffMax, "client", "backoff_max")

	if o.err != nil {
		return Config{}, o.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrWriteDefault loads path, writing the default config there first when
// the file does not exist. created reports whether it was written.
func LoadOrWriteDefault(path string) (cfg Config, created bool, err error) {
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		if err := WriteDefault(path, false); err != nil {
			return Config{}, false, err
		}
		log.Info().Str("path", path).Msg("config.LoadOrWriteDefault wrote default config")
		created = true
	}
	cfg, err = Load(path)
	return cfg, created, err
}

// overlay applies file values whose keys are present; the first parse error
// sticks.
type overlay struct {
	meta toml.MetaData
	err  error
}

func (o *overlay) str(dst *string, v string, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = strings.TrimSpace(v)
	}
}

func (o *overlay) integer(dst *int, v int, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = v
	}
}

func (o *overlay) boolean(dst *bool, v bool, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = v
	}
}

func (o *overlay) duration(dst *time.Duration, v string, key ...string) {
	if o.err != nil || !o.meta.IsDefined(key...) {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		o.err = fmt.Errorf("parse %s: %w", strings.Join(key, "."), err)
		return
	}
	*dst = d
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
