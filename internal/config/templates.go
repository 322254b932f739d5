package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteDefault writes the default realm config to path.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(DefaultTemplate), 0o600)
}

// DefaultTemplate decodes to Default().
const DefaultTemplate = `# development | production (production requires mutual TLS)
security_mode = "development"

[server]
realm_id = "realm.local"
listen_addr = "127.0.0.1:7400"
websocket_addr = "127.0.0.1:7401"
admin_addr = "127.0.0.1:7402"
# bearer token for /status, /sessions and /metrics; empty leaves them open
admin_token = ""
cors_origins = ["http://localhost:3000"]

[session]
connect_timeout = "5s"
handshake_timeout = "5s"
# sessions silent for longer than this are closed
read_timeout = "15s"
write_timeout = "5s"
heartbeat_interval = "5s"
max_pending_bytes = 1048576
read_chunk_size = 16384
send_queue = 256

[session.tls]
enabled = false
mutual = false
cert_file = ""
key_file = ""
ca_file = ""

[simulation]
tick_length = "50ms"
spawn_health = 100

[logging]
level = "info"
file = ""

[client]
addr = "127.0.0.1:7400"
max_connect_attempts = 5
backoff_initial = "250ms"
backoff_max = "5s"
`
