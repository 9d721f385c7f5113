// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
server:
  grpc_addr: "0.0.0.0:50061"
  http_addr: "0.0.0.0:8090"

database:
  path: "./test.db"

auth:
  jwt_secret: "a-very-long-secret-for-the-test-suite"

contract:
  admins: ["alice", "bob"]
  mutable: false

outbox:
  driver: "log"
  max_len: 500

replay:
  ttl: "30s"
  max_entries: 50

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.GRPCAddr != "0.0.0.0:50061" {
		t.Errorf("Server.GRPCAddr = %q", cfg.Server.GRPCAddr)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Database.Driver = %q, want default sqlite", cfg.Database.Driver)
	}
	if got := cfg.Contract.Admins; len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("Contract.Admins = %v", got)
	}
	if cfg.Contract.IsMutable() {
		t.Error("Contract.IsMutable() = true, want false")
	}
	if cfg.Outbox.MaxLen != 500 {
		t.Errorf("Outbox.MaxLen = %d", cfg.Outbox.MaxLen)
	}
	if cfg.Outbox.Stream != "whitelist:outbox" {
		t.Errorf("Outbox.Stream = %q, want default", cfg.Outbox.Stream)
	}
	if cfg.Replay.TTL != 30*time.Second || cfg.Replay.MaxEntries != 50 {
		t.Errorf("Replay = %+v", cfg.Replay)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "gateway.toml", `
[server]
grpc_addr = "127.0.0.1:50061"
http_addr = "127.0.0.1:8090"

[database]
driver = "redis"
redis_url = "redis://localhost:6379/0"

[auth]
sender_header = "X-Forwarded-User"

[contract]
admins = ["carl"]

[outbox]
driver = "redis"

[replay]
ttl = "1m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Driver != DriverRedis || cfg.Database.RedisPrefix != "whitelist:" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Outbox.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("Outbox.RedisURL = %q, want database.redis_url fallback", cfg.Outbox.RedisURL)
	}
	if !cfg.Contract.IsMutable() {
		t.Error("Contract.IsMutable() should default to true")
	}
	if cfg.Replay.TTL != time.Minute {
		t.Errorf("Replay.TTL = %v", cfg.Replay.TTL)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_WHITELIST_SECRET", "expanded-secret-value-long-enough-to-use")
	t.Setenv("WHITELIST_DB_PATH", "/tmp/override.db")

	path := writeConfig(t, "gateway.yaml", `
server:
  grpc_addr: "127.0.0.1:50061"
  http_addr: "127.0.0.1:8090"
database:
  path: "./ignored.db"
auth:
  jwt_secret: "${TEST_WHITELIST_SECRET}"
  issuer: "${TEST_WHITELIST_UNSET_VAR}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "expanded-secret-value-long-enough-to-use" {
		t.Errorf("Auth.JWTSecret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.Issuer != "" {
		t.Errorf("Auth.Issuer = %q, want empty for unset var", cfg.Auth.Issuer)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want WHITELIST_DB_PATH override", cfg.Database.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", "server: [unclosed")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Fatalf("Load() error = %v, want parse failure", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
server:
  grpc_addr: "127.0.0.1:50061"
  http_addr: "127.0.0.1:8090"
database:
  path: "./test.db"
auth:
  sender_header: "X-User"
replay:
  ttl: "soon"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "replay ttl") {
		t.Fatalf("Load() error = %v, want duration failure", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Server:   ServerConfig{GRPCAddr: "127.0.0.1:50061", HTTPAddr: "127.0.0.1:8090"},
			Database: DatabaseConfig{Path: "./test.db"},
			Auth:     AuthConfig{JWTSecret: "secret"},
		}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing grpc addr", mutate: func(c *Config) { c.Server.GRPCAddr = "" }, wantErr: "server.grpc_addr"},
		{name: "missing http addr", mutate: func(c *Config) { c.Server.HTTPAddr = "" }, wantErr: "server.http_addr"},
		{
			name: "tailscale replaces addrs",
			mutate: func(c *Config) {
				c.Server = ServerConfig{}
				c.Tailscale = TailscaleConfig{Enabled: true, Hostname: "whitelist"}
			},
		},
		{name: "tailscale without hostname", mutate: func(c *Config) { c.Tailscale.Enabled = true }, wantErr: "tailscale.hostname"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "redis without url", mutate: func(c *Config) { c.Database.Driver = DriverRedis }, wantErr: "database.redis_url"},
		{name: "memory needs nothing", mutate: func(c *Config) { c.Database = DatabaseConfig{Driver: DriverMemory} }},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: "database.driver"},
		{name: "no identity source", mutate: func(c *Config) { c.Auth = AuthConfig{} }, wantErr: "auth.jwt_secret"},
		{name: "redis outbox without url", mutate: func(c *Config) { c.Outbox.Driver = OutboxRedis }, wantErr: "outbox.redis_url"},
		{name: "unknown outbox", mutate: func(c *Config) { c.Outbox.Driver = "kafka" }, wantErr: "outbox.driver"},
		{name: "negative replay entries", mutate: func(c *Config) { c.Replay.MaxEntries = -1 }, wantErr: "replay.max_entries"},
		{
			name: "metrics path",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Path = "metrics"
			},
			wantErr: "metrics.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_EXPAND_A", "one")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${TEST_EXPAND_A}", "one"},
		{"a-${TEST_EXPAND_A}-b", "a-one-b"},
		{"${TEST_EXPAND_UNSET_B}", ""},
		{"$TEST_EXPAND_A", "$TEST_EXPAND_A"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	frozen := false
	in := &Config{
		Server:   ServerConfig{GRPCAddr: "127.0.0.1:50061", HTTPAddr: "127.0.0.1:8090"},
		Database: DatabaseConfig{Driver: DriverSQLite, Path: "./rt.db"},
		Auth:     AuthConfig{JWTSecret: "round-trip-secret-long-enough-for-use"},
		Contract: ContractConfig{Admins: []string{"alice"}, Mutable: &frozen},
		Replay:   ReplayConfig{TTL: 90 * time.Second},
	}
	path := filepath.Join(t.TempDir(), "nested", "gateway.yaml")

	if err := Write(path, in); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if out.Server != in.Server || out.Database.Path != "./rt.db" {
		t.Errorf("round trip lost server or database: %+v %+v", out.Server, out.Database)
	}
	if out.Contract.IsMutable() || len(out.Contract.Admins) != 1 {
		t.Errorf("Contract = %+v", out.Contract)
	}
	if out.Replay.TTL != 90*time.Second {
		t.Errorf("Replay.TTL = %v", out.Replay.TTL)
	}
	if in.Replay.TTLRaw != "" {
		t.Error("Write() must not modify its argument")
	}
}
