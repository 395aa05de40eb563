// ABOUTME: Entry point for hercules-gateway
// ABOUTME: Serves task rooms, writes starter configs, mints dev tokens and probes health

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/2389/hercules-gateway/internal/auth"
	"github.com/2389/hercules-gateway/internal/config"
	"github.com/2389/hercules-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                         _
| |__   ___ _ __ ___ _   _| | ___  ___
| '_ \ / _ \ '__/ __| | | | |/ _ \/ __|
| | | |  __/ | | (__| |_| | |  __/\__ \
|_| |_|\___|_|  \___|\__,_|_|\___||___/
`

const usage = `Usage: hercules-gateway <command> [flags]

Commands:
  serve     Start the gateway server
  init      Write a starter config file
  token     Mint a JWT for a user (requires auth.jwt_secret)
  health    Check a running gateway's health
  version   Print the version

Run "hercules-gateway <command> --help" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "init":
		err = runInit(args, os.Stdin, os.Stdout)
	case "token":
		err = runToken(args, os.Stdout)
	case "health":
		err = runHealth(ctx, args, os.Stdout)
	case "version", "--version":
		fmt.Println(version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}

	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads path, or the default location when path is empty. A
// missing file at the default location falls back to built-in defaults.
func loadConfig(path string) (*config.Config, string, error) {
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath()
	}

	if _, err := os.Stat(path); !explicit && errors.Is(err, os.ErrNotExist) {
		return config.Default(), "", nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "config file (default: $HERCULES_CONFIG or ~/.config/hercules/gateway.yaml)")
	addr := fs.String("addr", "", "override server.http_addr")
	logLevel := fs.String("log-level", "", "override logging.level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.HTTPAddr = *addr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	if path == "" {
		path = "(built-in defaults)"
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", path)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Model:     %s", cfg.LLM.Backend)
	if cfg.LLM.Model != "" {
		gray.Printf(" (%s)", cfg.LLM.Model)
	}
	fmt.Println()
	if cfg.Auth.JWTSecret == "" {
		yellow.Print("    ! ")
		fmt.Println("Auth:      disabled, every caller is anonymous")
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting hercules-gateway",
		"config", path,
		"http_addr", cfg.Server.HTTPAddr,
		"database", cfg.Database.Driver,
		"llm_backend", cfg.LLM.Backend,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func runHealth(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "config file")
	url := fs.String("url", "", "gateway base URL (default: http://<server.http_addr>)")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	base := *url
	if base == "" {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		base = "http://" + cfg.Server.HTTPAddr
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(base, "/")+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Fprintln(out, "healthy")
	return nil
}

// runToken mints a token the gateway will accept, for local testing.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "config file")
	user := fs.StringP("user", "u", "", "user id (sub claim)")
	email := fs.String("email", "", "email claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*user) == "" {
		return errors.New("--user is required")
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured in %s", path)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Audience)
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(*user, *email, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Fprintln(out, token)
	return nil
}

// initAnswers are the values written by init.
type initAnswers struct {
	HTTPAddr  string
	DBPath    string
	RoomsDir  string
	JWTSecret string
	Backend   string
	Model     string
	Tailscale bool
	Hostname  string
	LogLevel  string
	LogFormat string
}

func runInit(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	output := fs.StringP("output", "o", config.DefaultPath(), "where to write the config")
	force := fs.BoolP("force", "f", false, "overwrite an existing file")
	yes := fs.BoolP("yes", "y", false, "accept every default without prompting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*output); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", *output)
	}

	secret, err := randomSecret()
	if err != nil {
		return err
	}

	ask := func(question, def string) string { return def }
	if !*yes {
		reader := bufio.NewReader(in)
		ask = func(question, def string) string { return prompt(reader, out, question, def) }
		fmt.Fprintln(out, "hercules-gateway configuration setup")
		fmt.Fprintln(out, "====================================")
	}

	a := initAnswers{
		HTTPAddr:  ask("HTTP address", "127.0.0.1:8000"),
		DBPath:    ask("SQLite database path", "./hercules.db"),
		RoomsDir:  ask("Room folders directory", "./chat_rooms"),
		JWTSecret: secret,
		Backend:   ask("LLM backend (openai/echo)", config.BackendOpenAI),
		LogLevel:  ask("Log level (debug/info/warn/error)", "info"),
		LogFormat: ask("Log format (text/json)", "text"),
	}
	if a.Backend == config.BackendOpenAI {
		a.Model = ask("Model name", "gpt-4o")
	}
	if ts := ask("Enable Tailscale? (yes/no)", "no"); isYes(ts) {
		a.Tailscale = true
		a.Hostname = ask("Tailscale hostname", "hercules")
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(*output, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", *output)
	if a.Backend == config.BackendOpenAI {
		fmt.Fprintln(out, "Set OPENAI_API_KEY before starting the server.")
	}
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintf(out, "  hercules-gateway serve --config %s\n", *output)
	return nil
}

func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# hercules-gateway configuration\n")
	b.WriteString("# Generated by hercules-gateway init\n\n")

	b.WriteString("server:\n")
	fmt.Fprintf(&b, "  http_addr: %q\n", a.HTTPAddr)
	b.WriteString("  shutdown_timeout: \"10s\"\n\n")

	b.WriteString("database:\n")
	b.WriteString("  driver: \"sqlite\"\n")
	fmt.Fprintf(&b, "  path: %q\n\n", a.DBPath)

	b.WriteString("auth:\n")
	fmt.Fprintf(&b, "  jwt_secret: %q\n\n", a.JWTSecret)

	b.WriteString("llm:\n")
	fmt.Fprintf(&b, "  backend: %q\n", a.Backend)
	if a.Backend == config.BackendOpenAI {
		b.WriteString("  api_key: \"${OPENAI_API_KEY}\"\n")
		fmt.Fprintf(&b, "  model: %q\n", a.Model)
	}
	b.WriteString("\n")

	b.WriteString("agents:\n")
	b.WriteString("  max_turns: 5\n")
	b.WriteString("  turn_timeout: \"2m\"\n\n")

	b.WriteString("rooms:\n")
	fmt.Fprintf(&b, "  dir: %q\n\n", a.RoomsDir)

	b.WriteString("tailscale:\n")
	fmt.Fprintf(&b, "  enabled: %t\n", a.Tailscale)
	if a.Tailscale {
		fmt.Fprintf(&b, "  hostname: %q\n", a.Hostname)
	}
	b.WriteString("\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&b, "  format: %q\n\n", a.LogFormat)

	b.WriteString("metrics:\n")
	b.WriteString("  enabled: false\n")
	b.WriteString("  path: \"/metrics\"\n")
	return b.String()
}

func randomSecret() (string, error) {
	buf := make([]byte, auth.MinSecretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF, use the default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

// setupLogger builds the process logger. Text output goes through the
// colored handler.
func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(newColorHandler(w, opts.Level.Level()))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
