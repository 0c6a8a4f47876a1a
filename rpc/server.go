package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/netutil"

	"deficore/core"
	"deficore/crypto"
	"deficore/observability"
	"deficore/services/eventlog"
)

const (
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
	shutdownTimeout        = 10 * time.Second
)

// EventQuerier serves events_query.
type EventQuerier interface {
	Query(ctx context.Context, f eventlog.Filter) ([]eventlog.Record, error)
}

type Config struct {
	// DevMode enables protocol_advanceHeight.
	DevMode         bool
	Auth            AuthConfig
	RateLimit       RateLimit
	MaxConnections  int
	MaxRequestBytes int64
}

type methodFunc func(ctx context.Context, caller crypto.Address, params json.RawMessage) (interface{}, error)

type method struct {
	call methodFunc
	// auth requires an authenticated caller.
	auth bool
	dev  bool
}

type Server struct {
	protocol *core.Protocol
	events   EventQuerier
	hub      *Hub
	auth     *Authenticator
	limiter  *RateLimiter
	cfg      Config
	logger   *slog.Logger
	methods  map[string]method
}

// NewServer builds the JSON-RPC surface over protocol. events and hub may be
// nil, which disables events_query and the websocket stream respectively.
func NewServer(protocol *core.Protocol, events EventQuerier, hub *Hub, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = defaultMaxRequestBytes
	}
	s := &Server{
		protocol: protocol,
		events:   events,
		hub:      hub,
		auth:     NewAuthenticator(cfg.Auth),
		limiter:  NewRateLimiter(cfg.RateLimit),
		cfg:      cfg,
		logger:   logger,
		methods:  make(map[string]method),
	}
	s.registerToken()
	s.registerVesting()
	s.registerStaking()
	s.registerLending()
	s.registerHost()
	return s
}

func (s *Server) register(name string, m method) {
	if _, exists := s.methods[name]; exists {
		panic(fmt.Sprintf("rpc: duplicate method %s", name))
	}
	s.methods[name] = m
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if s.hub != nil {
		r.Get("/ws/events", s.hub.ServeHTTP)
	}
	r.With(s.limiter.Middleware).Post("/", s.handle)
	return otelhttp.NewHandler(r, "deficore.rpc")
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on an existing listener, capped at MaxConnections.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.cfg.MaxConnections)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc listening", slog.String("addr", listener.Addr().String()))
		serveErr <- server.Serve(listener)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpc shutdown: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"height": s.protocol.Height(),
	})
}

// handle decodes one JSON-RPC request and dispatches it.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, nil)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	m, ok := s.methods[req.Method]
	if !ok {
		observability.RPC().Observe(req.Method, codeMethodNotFound, time.Since(started))
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	result, err := s.dispatch(r, req, m)
	if err != nil {
		code := errorCode(err)
		observability.RPC().Observe(req.Method, code, time.Since(started))
		s.logger.Debug("rpc call rejected",
			slog.String("method", req.Method),
			slog.Int("code", code),
			slog.String("error", err.Error()))
		writeError(w, errorStatus(code), req.ID, code, err.Error(), nil)
		return
	}
	observability.RPC().Observe(req.Method, 0, time.Since(started))
	writeResult(w, req.ID, result)
}

func (s *Server) dispatch(r *http.Request, req *RPCRequest, m method) (interface{}, error) {
	if m.dev && !s.cfg.DevMode {
		return nil, errDevModeOnly
	}
	caller, err := s.auth.Caller(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errCallerRequired, err.Error())
	}
	if m.auth && caller.IsZero() {
		return nil, errCallerRequired
	}
	return m.call(r.Context(), caller, req.Params)
}
