// ABOUTME: Gateway orchestrator that wires store, fan-out hub, relay and HTTP server
// ABOUTME: Owns background agent sessions and the listener lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"tailscale.com/tsnet"

	"github.com/2389/hercules-gateway/internal/auth"
	"github.com/2389/hercules-gateway/internal/config"
	"github.com/2389/hercules-gateway/internal/conversation"
	"github.com/2389/hercules-gateway/internal/dedupe"
	"github.com/2389/hercules-gateway/internal/hub"
	"github.com/2389/hercules-gateway/internal/llm"
	"github.com/2389/hercules-gateway/internal/metrics"
	"github.com/2389/hercules-gateway/internal/room"
	"github.com/2389/hercules-gateway/internal/runtime"
	"github.com/2389/hercules-gateway/internal/sessionlog"
	"github.com/2389/hercules-gateway/internal/store"
)

// errSessionActive is returned when a room already has a running session.
var errSessionActive = errors.New("a session is already running in this room")

// Gateway serves the task API and room WebSockets, and runs agent sessions.
type Gateway struct {
	config      *config.Config
	store       store.Store
	registry    *hub.Registry
	broadcaster *hub.Broadcaster
	relay       *conversation.Relay
	rooms       *room.Manager
	dedupe      *dedupe.Cache
	metrics     *metrics.Metrics // nil when disabled
	verifier    auth.TokenVerifier
	upgrader    websocket.Upgrader
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// Background sessions started by POST /api/tasks
	sessionCtx    context.Context
	cancelSession context.CancelFunc
	sessions      sync.WaitGroup

	activeMu sync.Mutex
	active   map[string]struct{} // rooms with a running session

	// Hijacked WebSocket connections, which http.Server.Shutdown leaves open
	wsMu    sync.Mutex
	wsConns map[*wsConn]struct{}
}

// Options overrides components New would otherwise build from config.
type Options struct {
	Store   store.Store
	Runtime runtime.Runtime
}

// New creates a Gateway from cfg, opening the configured store and
// building the agent runtime.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	return NewWithOptions(cfg, logger, Options{})
}

// NewWithOptions is New with injectable store and runtime.
func NewWithOptions(cfg *config.Config, logger *slog.Logger, opts Options) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := opts.Store
	if s == nil {
		var err error
		s, err = initStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	rt := opts.Runtime
	if rt == nil {
		var err error
		rt, err = buildRuntime(cfg, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	verifier, err := buildVerifier(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	registry := hub.NewRegistry(logger)
	bopts := hub.BroadcasterOptions{
		SendTimeout: cfg.WebSocket.SendTimeout,
		Logger:      logger,
	}
	if m != nil {
		bopts.Recorder = m
	}
	broadcaster := hub.NewBroadcaster(registry, bopts)

	rcfg := conversation.RelayConfig{
		Runtime:        rt,
		Broadcaster:    broadcaster,
		Store:          s,
		Rooms:          s,
		SessionLog:     sessionlog.New(cfg.Rooms.Dir),
		Logger:         logger,
		MaxTurns:       cfg.Agents.MaxTurns,
		PersistTimeout: cfg.Agents.PersistTimeout,
		ProxyName:      cfg.Agents.ProxyName,
	}
	if cfg.LLM.TokenEncoding != "" {
		if tc := llm.NewTokenCounter(cfg.LLM.TokenEncoding, logger); tc != nil {
			rcfg.Tokens = tc
		}
	}
	if m != nil {
		rcfg.Metrics = m
	}
	relay, err := conversation.NewRelay(rcfg)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating relay: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	gw := &Gateway{
		config:        cfg,
		store:         s,
		registry:      registry,
		broadcaster:   broadcaster,
		relay:         relay,
		rooms:         room.NewManager(s, cfg.Rooms.Dir, logger),
		dedupe:        dedupe.New(cfg.Rooms.IdempotencyTTL, 10_000),
		metrics:       m,
		verifier:      verifier,
		upgrader:      newUpgrader(cfg.WebSocket.AllowedOrigins),
		logger:        logger.With("component", "gateway"),
		sessionCtx:    sessionCtx,
		cancelSession: cancel,
		active:        make(map[string]struct{}),
		wsConns:       make(map[*wsConn]struct{}),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// initStore opens the configured store. HERCULES_DB_PATH overrides the
// sqlite path.
func initStore(cfg *config.Config) (store.Store, error) {
	location := cfg.Database.Location()
	if envPath := os.Getenv("HERCULES_DB_PATH"); envPath != "" && cfg.Database.Driver == config.DriverSQLite {
		location = envPath
	}

	s, err := store.Open(context.Background(), cfg.Database.Driver, location)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// buildRuntime assembles the two-agent conversation over the configured
// chat model backend.
func buildRuntime(cfg *config.Config, logger *slog.Logger) (runtime.Runtime, error) {
	var model llm.ChatModel
	var warning string

	switch cfg.LLM.Backend {
	case config.BackendEcho:
		model = llm.EchoModel{}
	default:
		route := llm.Resolve(llm.RouteConfig{APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model}, os.Getenv)
		if route.Placeholder() {
			warning = llm.PlaceholderWarning
			logger.Warn("no LLM API key configured; sessions will fail at the provider")
		}
		model = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:            route.APIKey,
			Model:             route.Model,
			Endpoint:          cfg.LLM.Endpoint,
			Timeout:           cfg.LLM.Timeout,
			MaxTokens:         cfg.LLM.MaxTokens,
			Temperature:       cfg.LLM.Temperature,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		})
	}

	rt, err := runtime.NewConversation(runtime.ConversationConfig{
		Model:            model,
		SystemMessage:    cfg.Agents.SystemMessage,
		ProxyName:        cfg.Agents.ProxyName,
		AssistantName:    cfg.Agents.AssistantName,
		DefaultAutoReply: cfg.Agents.DefaultAutoReply,
		TurnTimeout:      cfg.Agents.TurnTimeout,
		Warning:          warning,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building agent runtime: %w", err)
	}
	logger.Info("agent runtime ready", "backend", cfg.LLM.Backend, "model", model.Model())
	return rt, nil
}

// buildVerifier returns nil (anonymous mode) when no secret is configured.
func buildVerifier(cfg *config.Config, logger *slog.Logger) (auth.TokenVerifier, error) {
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth disabled - no jwt_secret configured")
		return nil, nil
	}
	v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Audience)
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	return v, nil
}

// Handler returns the HTTP routes served by the gateway.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// No auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /api/public_info", g.handlePublicInfo)
	if g.metrics != nil {
		mux.Handle("GET "+g.config.Metrics.Path, g.metrics.Handler())
	}

	authed := auth.HTTPAuthMiddleware(g.verifier)
	mux.Handle("POST /api/tasks", authed(http.HandlerFunc(g.handleCreateTask)))
	mux.Handle("GET /api/rooms/{id}", authed(http.HandlerFunc(g.handleRoomDetails)))
	mux.Handle("POST /api/rooms/{id}/run", authed(http.HandlerFunc(g.handleRunRoom)))
	mux.Handle("GET /api/rooms/{id}/messages", authed(http.HandlerFunc(g.handleRoomMessages)))
	mux.Handle("GET /api/rooms/{id}/transcript", authed(http.HandlerFunc(g.handleRoomTranscript)))
	mux.Handle("GET /api/users/me", authed(http.HandlerFunc(g.handleUsersMe)))
	mux.Handle("GET /ws/{room_id}", authed(http.HandlerFunc(g.handleWebSocket)))

	return mux
}

// runSession drives one relay session, refusing to start a second one in
// the same room.
func (g *Gateway) runSession(ctx context.Context, roomID, prompt string) (conversation.Result, error) {
	if !g.claimRoom(roomID) {
		return conversation.Result{}, errSessionActive
	}
	defer g.releaseRoom(roomID)

	if g.metrics != nil {
		g.metrics.SessionStarted()
		defer g.metrics.SessionEnded()
	}
	return g.relay.Run(ctx, roomID, prompt), nil
}

// startSession runs a session in the background under the gateway's
// lifetime context.
func (g *Gateway) startSession(roomID, prompt string) {
	g.sessions.Add(1)
	go func() {
		defer g.sessions.Done()
		res, err := g.runSession(g.sessionCtx, roomID, prompt)
		if err != nil {
			g.logger.Warn("background session not started", "room_id", roomID, "error", err)
			return
		}
		g.logger.Info("background session finished", "room_id", roomID, "state", res.State)
	}()
}

func (g *Gateway) claimRoom(roomID string) bool {
	g.activeMu.Lock()
	defer g.activeMu.Unlock()
	if _, busy := g.active[roomID]; busy {
		return false
	}
	g.active[roomID] = struct{}{}
	return true
}

func (g *Gateway) releaseRoom(roomID string) {
	g.activeMu.Lock()
	delete(g.active, roomID)
	g.activeMu.Unlock()
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// startServer serves HTTP on ln in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown runs Shutdown on a fresh context; the run context is
// already canceled by now.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, cancels background sessions and waits
// for them (bounded by ctx), then releases the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.cancelSession()
	done := make(chan struct{})
	go func() {
		g.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		g.logger.Warn("shutdown deadline reached with sessions still running")
	}
	g.closeWebSockets()

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())
	g.dedupe.Close()

	return errors.Join(errs...)
}
