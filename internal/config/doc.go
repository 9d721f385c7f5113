// Package config handles configuration loading for whitelist-gateway.
//
// # Configuration File
//
// The gateway reads one file. Its location is resolved by the binary:
//
//  1. Path from WHITELIST_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/whitelist/gateway.yaml
//  3. ~/.config/whitelist/gateway.yaml
//
// Files ending in .toml are decoded as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${WHITELIST_JWT_SECRET}"
//
// Unset variables expand to the empty string. WHITELIST_DB_PATH overrides
// database.path after expansion.
//
// # Example
//
//	server:
//	  grpc_addr: "127.0.0.1:50061"
//	  http_addr: "127.0.0.1:8090"
//
//	database:
//	  driver: "sqlite"          # sqlite, redis, memory
//	  path: "~/.local/share/whitelist/gateway.db"
//	  redis_url: "redis://localhost:6379/0"
//
//	auth:
//	  jwt_secret: "${WHITELIST_JWT_SECRET}"
//	  sender_header: ""         # e.g. X-Forwarded-User behind a proxy
//
//	contract:
//	  admins: ["alice", "bob"]  # used only when the store is empty
//	  mutable: true
//
//	outbox:
//	  driver: "log"             # log, redis
//	  stream: "whitelist:outbox"
//	  max_len: 10000
//
//	replay:
//	  ttl: "10m"
//	  max_entries: 10000
//
//	logging:
//	  level: "info"             # debug, info, warn, error
//	  format: "text"            # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax ("30s", "10m").
package config
