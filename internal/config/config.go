// Package config loads the realm TOML configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/reckoning/internal/protocol/session"
)

type ServerConfig struct {
	RealmID       string
	ListenAddr    string
	WebSocketAddr string
	AdminAddr     string
	AdminToken    string
	CORSOrigins   []string
}

type SimulationConfig struct {
	TickLength  time.Duration
	SpawnHealth uint64
}

type LoggingConfig struct {
	Level string
	File  string
}

type ClientConfig struct {
	Addr               string
	MaxConnectAttempts int
}

type Config struct {
	Server     ServerConfig
	Session    session.Config
	Simulation SimulationConfig
	Logging    LoggingConfig
	Client     ClientConfig
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			RealmID:       "realm.local",
			ListenAddr:    "127.0.0.1:7400",
			WebSocketAddr: "127.0.0.1:7401",
			AdminAddr:     "127.0.0.1:7402",
			CORSOrigins:   []string{"http://localhost:3000"},
		},
		Session: session.DefaultConfig(),
		Simulation: SimulationConfig{
			TickLength:  50 * time.Millisecond,
			SpawnHealth: 100,
		},
		Logging: LoggingConfig{Level: "info"},
		Client: ClientConfig{
			Addr:               "127.0.0.1:7400",
			MaxConnectAttempts: 5,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.RealmID) == "" {
		return fmt.Errorf("config: server.realm_id is required")
	}
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return fmt.Errorf("config: server.listen_addr is required")
	}
	if c.Simulation.TickLength <= 0 {
		return fmt.Errorf("config: simulation.tick_length must be positive")
	}
	if c.Simulation.SpawnHealth == 0 {
		return fmt.Errorf("config: simulation.spawn_health must be positive; zero health marks a despawn")
	}
	if c.Session.SendQueue < 0 || c.Session.ReadChunkSize < 0 {
		return fmt.Errorf("config: session sizes must not be negative")
	}
	if c.Session.MaxPendingBytes < session.MinPendingBytes {
		return fmt.Errorf("config: session.max_pending_bytes (%d) must hold one full frame (%d bytes)",
			c.Session.MaxPendingBytes, session.MinPendingBytes)
	}
	if c.Session.HeartbeatInterval > 0 && c.Session.ReadTimeout > 0 && c.Session.HeartbeatInterval >= c.Session.ReadTimeout {
		return fmt.Errorf("config: session.heartbeat_interval (%s) must be shorter than session.read_timeout (%s)",
			c.Session.HeartbeatInterval, c.Session.ReadTimeout)
	}
	return nil
}
