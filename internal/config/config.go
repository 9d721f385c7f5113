// ABOUTME: Configuration loading and parsing for whitelist-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Outbox drivers.
const (
	OutboxLog   = "log"
	OutboxRedis = "redis"
)

// Config represents the complete whitelist-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale,omitempty" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database,omitempty" toml:"database"`
	Auth      AuthConfig      `yaml:"auth,omitempty" toml:"auth"`
	Contract  ContractConfig  `yaml:"contract,omitempty" toml:"contract"`
	Outbox    OutboxConfig    `yaml:"outbox,omitempty" toml:"outbox"`
	Replay    ReplayConfig    `yaml:"replay,omitempty" toml:"replay"`
	Logging   LoggingConfig   `yaml:"logging,omitempty" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr,omitempty" toml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr,omitempty" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty" toml:"enabled"`
	Hostname  string `yaml:"hostname,omitempty" toml:"hostname"`
	AuthKey   string `yaml:"auth_key,omitempty" toml:"auth_key"`
	StateDir  string `yaml:"state_dir,omitempty" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral,omitempty" toml:"ephemeral"`
}

// DatabaseConfig selects and configures the state store
type DatabaseConfig struct {
	Driver      string `yaml:"driver,omitempty" toml:"driver"` // sqlite (default), redis, memory
	Path        string `yaml:"path,omitempty" toml:"path"`
	RedisURL    string `yaml:"redis_url,omitempty" toml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix,omitempty" toml:"redis_prefix"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret,omitempty" toml:"jwt_secret"`
	Issuer    string `yaml:"issuer,omitempty" toml:"issuer"`
	// SenderHeader names a header trusted to carry the sender when no token
	// is presented. Only set this behind an authenticating proxy.
	SenderHeader string `yaml:"sender_header,omitempty" toml:"sender_header"`
}

// ContractConfig bootstraps the registry when the store is empty
type ContractConfig struct {
	Admins  []string `yaml:"admins,omitempty" toml:"admins"`
	Mutable *bool    `yaml:"mutable,omitempty" toml:"mutable"`
}

// IsMutable reports the configured flag, defaulting to true.
func (c ContractConfig) IsMutable() bool {
	return c.Mutable == nil || *c.Mutable
}

// OutboxConfig selects where forwarded actions are delivered
type OutboxConfig struct {
	Driver   string `yaml:"driver,omitempty" toml:"driver"` // log (default), redis
	RedisURL string `yaml:"redis_url,omitempty" toml:"redis_url"`
	Stream   string `yaml:"stream,omitempty" toml:"stream"`
	MaxLen   int64  `yaml:"max_len,omitempty" toml:"max_len"`
}

// ReplayConfig tunes the request-id replay guard
type ReplayConfig struct {
	TTL        time.Duration `yaml:"-" toml:"-"`
	MaxEntries int           `yaml:"max_entries,omitempty" toml:"max_entries"`

	// Raw string values for unmarshaling
	TTLRaw string `yaml:"ttl,omitempty" toml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level"`
	Format string `yaml:"format,omitempty" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty" toml:"enabled"`
	Path    string `yaml:"path,omitempty" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Write marshals cfg as YAML to path, creating the directory if needed.
// The file holds the JWT secret, so it is written owner-only.
func Write(path string, cfg *Config) error {
	out := *cfg
	if out.Replay.TTL != 0 {
		out.Replay.TTLRaw = out.Replay.TTL.String()
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	data = append([]byte("# whitelist-gateway configuration\n"), data...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyEnvOverrides(cfg *Config) {
	if p := os.Getenv("WHITELIST_DB_PATH"); p != "" {
		cfg.Database.Path = p
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.RedisPrefix == "" {
		cfg.Database.RedisPrefix = "whitelist:"
	}
	if cfg.Outbox.Driver == "" {
		cfg.Outbox.Driver = OutboxLog
	}
	if cfg.Outbox.RedisURL == "" {
		cfg.Outbox.RedisURL = cfg.Database.RedisURL
	}
	if cfg.Outbox.Stream == "" {
		cfg.Outbox.Stream = "whitelist:outbox"
	}
	if cfg.Replay.TTL == 0 {
		cfg.Replay.TTL = 10 * time.Minute
	}
	if cfg.Replay.MaxEntries == 0 {
		cfg.Replay.MaxEntries = 10000
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server addresses are required unless Tailscale is enabled
	if !c.Tailscale.Enabled {
		if c.Server.GRPCAddr == "" {
			return fmt.Errorf("server.grpc_addr is required (or enable tailscale)")
		}
		if c.Server.HTTPAddr == "" {
			return fmt.Errorf("server.http_addr is required (or enable tailscale)")
		}
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverRedis:
		if c.Database.RedisURL == "" {
			return fmt.Errorf("database.redis_url is required for the redis driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver %q is not one of sqlite, redis, memory", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" && c.Auth.SenderHeader == "" {
		return fmt.Errorf("auth.jwt_secret or auth.sender_header is required")
	}

	switch c.Outbox.Driver {
	case OutboxLog:
	case OutboxRedis:
		if c.Outbox.RedisURL == "" {
			return fmt.Errorf("outbox.redis_url (or database.redis_url) is required for the redis outbox")
		}
	default:
		return fmt.Errorf("outbox.driver %q is not one of log, redis", c.Outbox.Driver)
	}
	if c.Outbox.MaxLen < 0 {
		return fmt.Errorf("outbox.max_len must not be negative")
	}

	if c.Replay.TTL < 0 {
		return fmt.Errorf("replay.ttl must not be negative")
	}
	if c.Replay.MaxEntries < 0 {
		return fmt.Errorf("replay.max_entries must not be negative")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Replay.TTLRaw != "" {
		cfg.Replay.TTL, err = time.ParseDuration(cfg.Replay.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing replay ttl %q: %w", cfg.Replay.TTLRaw, err)
		}
	}

	return nil
}
