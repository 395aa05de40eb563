// ABOUTME: Configuration loading and parsing for hercules-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete hercules-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Agents    AgentsConfig    `yaml:"agents" toml:"agents"`
	LLM       LLMConfig       `yaml:"llm" toml:"llm"`
	Rooms     RoomsConfig     `yaml:"rooms" toml:"rooms"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	CertFile  string `yaml:"cert_file" toml:"cert_file"` // from: tailscale cert <hostname>
	KeyFile   string `yaml:"key_file" toml:"key_file"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"`
}

// DatabaseConfig selects the transcript store
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // sqlite or postgres
	Path   string `yaml:"path" toml:"path"`     // sqlite file
	DSN    string `yaml:"dsn" toml:"dsn"`       // postgres connection string
}

// Location returns the path or DSN for the selected driver.
func (d DatabaseConfig) Location() string {
	if d.Driver == DriverPostgres {
		return d.DSN
	}
	return d.Path
}

// AuthConfig holds authentication configuration. An empty secret disables
// authentication and every caller acts as the anonymous user.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	Audience  string `yaml:"audience" toml:"audience"`
}

// AgentsConfig shapes the two-agent conversation
type AgentsConfig struct {
	MaxTurns         int    `yaml:"max_turns" toml:"max_turns"`
	DefaultAutoReply string `yaml:"default_auto_reply" toml:"default_auto_reply"`
	SystemMessage    string `yaml:"system_message" toml:"system_message"`
	ProxyName        string `yaml:"proxy_name" toml:"proxy_name"`
	AssistantName    string `yaml:"assistant_name" toml:"assistant_name"`

	TurnTimeout    time.Duration `yaml:"-" toml:"-"`
	PersistTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TurnTimeoutRaw    string `yaml:"turn_timeout" toml:"turn_timeout"`
	PersistTimeoutRaw string `yaml:"persist_timeout" toml:"persist_timeout"`
}

// LLMConfig selects the chat model backend
type LLMConfig struct {
	Backend           string  `yaml:"backend" toml:"backend"` // openai or echo
	APIKey            string  `yaml:"api_key" toml:"api_key"`
	Model             string  `yaml:"model" toml:"model"`
	Endpoint          string  `yaml:"endpoint" toml:"endpoint"`
	RequestsPerMinute int     `yaml:"requests_per_minute" toml:"requests_per_minute"`
	MaxTokens         int     `yaml:"max_tokens" toml:"max_tokens"`
	Temperature       float64 `yaml:"temperature" toml:"temperature"`
	TokenEncoding     string  `yaml:"token_encoding" toml:"token_encoding"` // empty disables counting

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// RoomsConfig holds room bookkeeping configuration
type RoomsConfig struct {
	Dir            string        `yaml:"dir" toml:"dir"`
	IdempotencyTTL time.Duration `yaml:"-" toml:"-"`

	IdempotencyTTLRaw string `yaml:"idempotency_ttl" toml:"idempotency_ttl"`
}

// WebSocketConfig holds live-connection limits
type WebSocketConfig struct {
	MaxConnectionsPerRoom int           `yaml:"max_connections_per_room" toml:"max_connections_per_room"`
	AllowedOrigins        []string      `yaml:"allowed_origins" toml:"allowed_origins"`
	SendTimeout           time.Duration `yaml:"-" toml:"-"`

	SendTimeoutRaw string `yaml:"send_timeout" toml:"send_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// LLM backends
const (
	BackendOpenAI = "openai"
	BackendEcho   = "echo"
)

// minSecretLength mirrors auth.MinSecretLength.
const minSecretLength = 32

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        "127.0.0.1:8000",
			ShutdownTimeout: 10 * time.Second,
		},
		Tailscale: TailscaleConfig{Hostname: "hercules"},
		Database:  DatabaseConfig{Driver: DriverSQLite, Path: "./hercules.db"},
		Agents: AgentsConfig{
			MaxTurns:       5,
			TurnTimeout:    2 * time.Minute,
			PersistTimeout: 5 * time.Second,
		},
		LLM: LLMConfig{
			Backend:           BackendOpenAI,
			RequestsPerMinute: 60,
			Timeout:           60 * time.Second,
			TokenEncoding:     "cl100k_base",
		},
		Rooms: RoomsConfig{
			Dir:            "./chat_rooms",
			IdempotencyTTL: 10 * time.Minute,
		},
		WebSocket: WebSocketConfig{
			MaxConnectionsPerRoom: 256,
			SendTimeout:           5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Path: "/metrics"},
	}
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

	return Parse(expandEnvVars(string(data)), strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes already-expanded configuration text over Default().
func Parse(text string, isTOML bool) (*Config, error) {
	cfg := Default()
	if isTOML {
		if _, err := toml.Decode(text, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(text), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or an empty
// string when it is unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return errors.New("tailscale.hostname is required when tailscale is enabled")
	}
	if (c.Tailscale.CertFile == "") != (c.Tailscale.KeyFile == "") {
		return errors.New("tailscale.cert_file and tailscale.key_file must be set together")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported (sqlite, postgres)", c.Database.Driver)
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minSecretLength)
	}

	if c.Agents.MaxTurns < 0 {
		return errors.New("agents.max_turns must not be negative")
	}
	if c.Agents.TurnTimeout < 0 || c.Agents.PersistTimeout < 0 {
		return errors.New("agents timeouts must not be negative")
	}

	switch c.LLM.Backend {
	case BackendOpenAI, BackendEcho:
	default:
		return fmt.Errorf("llm.backend %q is not supported (openai, echo)", c.LLM.Backend)
	}
	if c.LLM.RequestsPerMinute < 0 {
		return errors.New("llm.requests_per_minute must not be negative")
	}

	if c.Rooms.Dir == "" {
		return errors.New("rooms.dir is required")
	}

	if c.WebSocket.MaxConnectionsPerRoom <= 0 {
		return errors.New("websocket.max_connections_per_room must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
// Empty strings keep the defaults.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"agents.turn_timeout", cfg.Agents.TurnTimeoutRaw, &cfg.Agents.TurnTimeout},
		{"agents.persist_timeout", cfg.Agents.PersistTimeoutRaw, &cfg.Agents.PersistTimeout},
		{"llm.timeout", cfg.LLM.TimeoutRaw, &cfg.LLM.Timeout},
		{"rooms.idempotency_ttl", cfg.Rooms.IdempotencyTTLRaw, &cfg.Rooms.IdempotencyTTL},
		{"websocket.send_timeout", cfg.WebSocket.SendTimeoutRaw, &cfg.WebSocket.SendTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// DefaultPath finds the configuration file: HERCULES_CONFIG, then
// ./config.yaml, then $XDG_CONFIG_HOME/hercules/gateway.yaml (or
// ~/.config/hercules/gateway.yaml). The last candidate is returned even
// when it does not exist so callers can report it.
func DefaultPath() string {
	if p := os.Getenv("HERCULES_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return filepath.Join(xdgConfigHome(), "hercules", "gateway.yaml")
}

func xdgConfigHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config"
	}
	return filepath.Join(home, ".config")
}
