package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "RECKONING_LOG_LEVEL"
	EnvLogTimestamp = "RECKONING_LOG_TIMESTAMP"
	EnvLogNoColor   = "RECKONING_LOG_NOCOLOR"
	EnvLogFile      = "RECKONING_LOG_FILE"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logging setup.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	// File, when set, receives a JSON copy of every log line.
	File string
}

var (
	configureOnce sync.Once
	mu            sync.Mutex
	logFile       *os.File
)

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure installs the profile's defaults, with environment overrides,
// as the global logger. Only the first call has any effect.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := DefaultConfig(profile)
		applyEnvOverrides(&cfg)
		if err := Apply(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		}
	})
}

func DefaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, Timestamp: false}
	default:
		return Config{Level: zerolog.InfoLevel, Timestamp: true}
	}
}

// Apply replaces the global logger with one built from cfg. It may be called
// after Configure, for example once a config file has been read.
func Apply(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	var out io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if path := strings.TrimSpace(cfg.File); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", path, err)
		}
		if logFile != nil {
			_ = logFile.Close()
		}
		logFile = f
		out = zerolog.MultiLevelWriter(out, f)
	}

	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	zerolog.SetGlobalLevel(cfg.Level)
	log.Logger = ctx.Logger()
	return nil
}

// Merge overlays file-configured values onto cfg. Empty values keep cfg.
func Merge(cfg Config, level, file string) (Config, error) {
	if strings.TrimSpace(level) != "" {
		lvl, ok := ParseLevel(level)
		if !ok {
			return cfg, fmt.Errorf("logging: unknown level %q", level)
		}
		cfg.Level = lvl
	}
	if strings.TrimSpace(file) != "" {
		cfg.File = strings.TrimSpace(file)
	}
	return cfg, nil
}

// RuntimeConfig resolves the runtime profile with file settings applied and
// environment overrides on top.
func RuntimeConfig(level, file string) (Config, error) {
	cfg, err := Merge(DefaultConfig(ProfileRuntime), level, file)
	if err != nil {
		return cfg, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.File = v
	}
}

// ParseLevel accepts the level names used in config files and env vars.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
