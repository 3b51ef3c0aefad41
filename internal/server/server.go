package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestStatus reports the broker connection for the readiness endpoints.
type IngestStatus interface {
	Connected() bool
	Status() string
}

type Config struct {
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	ShutdownTimeout time.Duration
	AcceptLimit     int
	AcceptWindow    time.Duration

	// MaxSessionsPerRemote bounds concurrently open sessions per client
	// address; zero disables the bound.
	MaxSessionsPerRemote int
	TrustProxyHeaders    bool
	OriginPatterns       []string
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout:         5 * time.Second,
		MaxMessageBytes:      64 << 10,
		ShutdownTimeout:      5 * time.Second,
		AcceptLimit:          60,
		AcceptWindow:         time.Minute,
		MaxSessionsPerRemote: 16,
	}
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(server *Server) {
		if logger != nil {
			server.logger = logger
		}
	}
}

func WithIngestStatus(status IngestStatus) Option {
	return func(server *Server) {
		server.ingest = status
	}
}

func WithOpsRecorder(recorder *OpsRecorder) Option {
	return func(server *Server) {
		server.recorder = recorder
	}
}

func WithOpsEventStore(store OpsEventStore) Option {
	return func(server *Server) {
		server.opsStore = store
	}
}

func WithConfig(config Config) Option {
	return func(server *Server) {
		server.config = config
	}
}

// Server accepts WebSocket sessions and answers each request with the
// current telemetry snapshot. It also serves health and ops endpoints.
type Server struct {
	store    SnapshotReader
	registry *Registry
	ids      *IDSource
	ingest   IngestStatus
	recorder *OpsRecorder
	opsStore OpsEventStore
	gate     *sessionGate
	config   Config
	logger   *zap.Logger

	// lifecycle guards closing so that no session joins the WaitGroup after
	// shutdown has started waiting on it.
	lifecycle sync.Mutex
	closing   bool
	sessions  sync.WaitGroup
}

func New(store SnapshotReader, options ...Option) *Server {
	server := &Server{
		store:    store,
		registry: NewRegistry(),
		ids:      NewIDSource(time.Now()),
		config:   DefaultConfig(),
		logger:   zap.NewNop(),
	}
	for _, option := range options {
		option(server)
	}

	defaults := DefaultConfig()
	if server.config.WriteTimeout <= 0 {
		server.config.WriteTimeout = defaults.WriteTimeout
	}
	if server.config.MaxMessageBytes <= 0 {
		server.config.MaxMessageBytes = defaults.MaxMessageBytes
	}
	if server.config.ShutdownTimeout <= 0 {
		server.config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	server.gate = newSessionGate(server.config.AcceptLimit, server.config.AcceptWindow, server.config.MaxSessionsPerRemote)
	return server
}

func (server *Server) Registry() *Registry {
	return server.registry
}

func (server *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/ready", server.handleReady)
	mux.HandleFunc("/api/ops-events", server.handleOpsEvents)
	mux.HandleFunc("/", server.handleSession)
	return mux
}

// Serve runs until ctx is cancelled or the listener fails. On cancellation it
// stops accepting, closes every live session and waits for their handlers.
func (server *Server) Serve(ctx context.Context, listener net.Listener) error {
	sessionCtx, closeSessions := context.WithCancel(context.WithoutCancel(ctx))
	defer closeSessions()

	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return sessionCtx },
		ErrorLog:          zap.NewStdLog(server.logger.Named("http")),
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(listener) }()
	server.logger.Info("bridge listening", zap.String("addr", listener.Addr().String()))

	select {
	case err := <-serveErr:
		server.stopAccepting()
		closeSessions()
		server.sessions.Wait()
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
	defer cancel()

	server.stopAccepting()
	err := httpServer.Shutdown(shutdownCtx)
	closeSessions()
	if waitErr := server.waitSessions(shutdownCtx); waitErr != nil {
		err = errors.Join(err, waitErr)
	}
	if serveErr := <-serveErr; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		err = errors.Join(err, serveErr)
	}

	server.logger.Info("bridge stopped", zap.Int("clients", server.registry.Count()))
	return err
}

// beginSession reserves a slot in the session WaitGroup, or reports false once
// shutdown has begun.
func (server *Server) beginSession() bool {
	server.lifecycle.Lock()
	defer server.lifecycle.Unlock()
	if server.closing {
		return false
	}
	server.sessions.Add(1)
	return true
}

func (server *Server) stopAccepting() {
	server.lifecycle.Lock()
	server.closing = true
	server.lifecycle.Unlock()
}

func (server *Server) waitSessions(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		server.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sessions still open after shutdown timeout: %d", server.registry.Count())
	}
}

func (server *Server) handleSession(response http.ResponseWriter, request *http.Request) {
	if !server.beginSession() {
		writeError(response, http.StatusServiceUnavailable, "bridge shutting down")
		return
	}
	defer server.sessions.Done()

	remote := sessionRemote(request, server.config.TrustProxyHeaders)
	switch server.gate.admit(remote, time.Now()) {
	case rejectedRate:
		writeError(response, http.StatusTooManyRequests, "too many connection attempts")
		return
	case rejectedLive:
		writeError(response, http.StatusTooManyRequests, "too many open sessions")
		return
	}
	defer server.gate.release(remote)

	conn, err := websocket.Accept(response, request, &websocket.AcceptOptions{
		OriginPatterns: server.config.OriginPatterns,
	})
	if err != nil {
		server.logger.Debug("websocket upgrade rejected", zap.String("remote", remote), zap.Error(err))
		return
	}
	conn.SetReadLimit(server.config.MaxMessageBytes)

	info := SessionInfo{ID: uuid.NewString(), Remote: remote, OpenedAt: time.Now()}
	logger := server.logger.With(zap.String("session", info.ID), zap.String("remote", remote))

	clients := server.registry.Add(info)
	logger.Info("client connected", zap.Int("clients", clients))
	server.recorder.Record(OpsKindSessionOpened, "client connected", remote)

	current := &session{
		id:           info.ID,
		conn:         conn,
		store:        server.store,
		ids:          server.ids,
		writeTimeout: server.config.WriteTimeout,
		logger:       logger,
	}
	// Shutdown cancels the request context; the session sees a closed
	// transport rather than a cancelled read.
	stopWatch := context.AfterFunc(request.Context(), func() {
		_ = conn.Close(websocket.StatusGoingAway, "bridge shutting down")
	})
	serveErr := current.serve(context.WithoutCancel(request.Context()))
	if stopWatch() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}

	clients = server.registry.Remove(info.ID)
	fields := []zap.Field{zap.Int("clients", clients), zap.Int("requests", current.served)}
	if serveErr != nil {
		fields = append(fields, zap.Error(serveErr))
	}
	logger.Info("client disconnected", fields...)
	server.recorder.Record(OpsKindSessionClosed, "client disconnected", remote)
}

func (server *Server) handleHealth(response http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writeError(response, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(response, http.StatusOK, map[string]any{
		"status":   "ok",
		"clients":  server.registry.Count(),
		"ingest":   server.ingestStatus(),
		"channels": server.store.Snapshot(),
	})
}

func (server *Server) handleReady(response http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writeError(response, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if server.ingest == nil || !server.ingest.Connected() {
		writeJSON(response, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"ingest": server.ingestStatus(),
		})
		return
	}

	writeJSON(response, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func (server *Server) handleOpsEvents(response http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writeError(response, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if server.opsStore == nil {
		writeError(response, http.StatusNotFound, "ops event log disabled")
		return
	}

	limit := 100
	if rawLimit := request.URL.Query().Get("limit"); rawLimit != "" {
		parsedLimit, err := strconv.Atoi(rawLimit)
		if err != nil || parsedLimit < 1 || parsedLimit > 1000 {
			writeError(response, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = parsedLimit
	}

	events, err := server.opsStore.LatestOpsEvents(request.Context(), limit)
	if err != nil {
		writeError(response, http.StatusInternalServerError, "failed to read ops events")
		return
	}

	writeJSON(response, http.StatusOK, map[string]any{"events": events})
}

func (server *Server) ingestStatus() string {
	if server.ingest == nil {
		return "unknown"
	}
	return server.ingest.Status()
}

func writeJSON(response http.ResponseWriter, statusCode int, payload any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(statusCode)
	_ = json.NewEncoder(response).Encode(payload)
}

func writeError(response http.ResponseWriter, statusCode int, message string) {
	writeJSON(response, statusCode, map[string]string{"error": message})
}
