// Package config handles configuration loading for hercules-gateway.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the HERCULES_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. $XDG_CONFIG_HOME/hercules/gateway.yaml
//
// Files ending in .toml are decoded as TOML; anything else is YAML.
// Fields omitted from the file keep the values from Default().
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${HERCULES_JWT_SECRET}"
//	llm:
//	  api_key: "${OPENAI_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Durations
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agents:
//	  turn_timeout: "2m"
//	  persist_timeout: "5s"
//	websocket:
//	  send_timeout: "5s"
//
// # Sections
//
//	server:
//	  http_addr: "127.0.0.1:8000"
//	database:
//	  driver: "sqlite"            # sqlite or postgres
//	  path: "./hercules.db"
//	  dsn: "postgres://..."       # postgres only
//	agents:
//	  max_turns: 5
//	llm:
//	  backend: "openai"           # openai or echo
//	  model: "gpt-3.5-turbo"
//	  requests_per_minute: 60
//	rooms:
//	  dir: "./chat_rooms"
//	websocket:
//	  max_connections_per_room: 256
//	logging:
//	  level: "info"               # debug, info, warn, error
//	  format: "text"              # text, json
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// Tailscale (tsnet) replaces the TCP listener when enabled:
//
//	tailscale:
//	  enabled: true
//	  hostname: "hercules"
//	  auth_key: "${TS_AUTHKEY}"
package config
