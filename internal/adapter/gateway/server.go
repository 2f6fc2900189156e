package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"costcompass/internal/infra/config"
	"costcompass/internal/infra/middleware"
	"costcompass/internal/usecase"
	"costcompass/internal/usecase/orchestrate"
)

// OrchestratorFactory builds a fresh orchestrator for a new session.
type OrchestratorFactory func(sessionID string) *orchestrate.Orchestrator

// session pairs an orchestrator with the lock that serializes its queries.
// Orchestrators are not safe for concurrent Process calls.
type session struct {
	mu   sync.Mutex
	orch *orchestrate.Orchestrator
}

// Server is the HTTP gateway over the orchestration layer. Each session ID
// maps to one orchestrator; unknown IDs get a fresh one on first use.
type Server struct {
	registry  *usecase.Registry
	factory   OrchestratorFactory
	cfg       config.GatewayConfig
	logger    *slog.Logger
	metrics   *Metrics
	startTime time.Time

	mu       sync.Mutex
	sessions map[string]*session
	entropy  *ulid.MonotonicEntropy

	httpSrv   *http.Server
	boundAddr string
}

// NewServer creates a gateway server. factory is invoked once per new
// session ID.
func NewServer(registry *usecase.Registry, factory OrchestratorFactory, cfg config.GatewayConfig, logger *slog.Logger) *Server {
	return &Server{
		registry:  registry,
		factory:   factory,
		cfg:       cfg,
		logger:    logger,
		metrics:   &Metrics{},
		startTime: time.Now(),
		sessions:  make(map[string]*session),
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Handler builds the full route mux with middleware applied. Exposed
// separately from Start for tests.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat", s.handleChat)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/reset", s.handleReset)
	mux.HandleFunc("/metrics", s.handleMetrics)

	var h http.Handler = mux
	if s.cfg.RateLimit.Enabled {
		h = middleware.RateLimit(ctx, s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst)(h)
	}
	h = middleware.SecurityHeaders(h)
	return h
}

// Start begins serving. Blocks until the context is cancelled or serving
// fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual listen address. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

// getSession returns the session for id, creating it when absent. An empty
// id gets a freshly minted ULID.
func (s *Server) getSession(id string) (string, *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
	}
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{orch: s.factory(id)}
		s.sessions[id] = sess
		s.metrics.SessionsTotal.Add(1)
		s.logger.Info("session created", "session_id", id)
	}
	return id, sess
}

func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
