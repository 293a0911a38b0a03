// Package server is the development preview server. It serves the
// committed artifacts of a build session, pushes reload notifications to
// connected browsers and exposes the session's errors and metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conneroisu/slate/internal/config"
	"github.com/conneroisu/slate/internal/engine"
	"github.com/conneroisu/slate/internal/logging"
	"github.com/conneroisu/slate/internal/websocket"
)

// Prefix is the path prefix of the server's own endpoints.
const Prefix = "/_slate"

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler exposes h at /_slate/metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithOrchestrator routes requested rebuilds through o, so they supersede
// and are superseded like any other cycle.
func WithOrchestrator(o *engine.Orchestrator) Option {
	return func(s *Server) {
		s.orchestrator = o
	}
}

// Server serves one build session over HTTP.
type Server struct {
	cfg          *config.Config
	session      *engine.Session
	orchestrator *engine.Orchestrator
	logger       logging.Logger
	hub          *websocket.Hub
	metrics      http.Handler
	router       *chi.Mux

	serverMutex sync.Mutex
	httpServer  *http.Server
	listener    net.Listener
}

// New creates a preview server for session.
func New(cfg *config.Config, session *engine.Session, logger logging.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	port := strconv.Itoa(cfg.Serve.Port)
	s := &Server{
		cfg:     cfg,
		session: session,
		logger:  logger.WithComponent("server"),
		hub: websocket.NewHub([]string{
			net.JoinHostPort(cfg.Serve.Host, port),
			net.JoinHostPort("localhost", port),
			net.JoinHostPort("127.0.0.1", port),
		}, logger),
		router: chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	s.router.Route(Prefix, func(r chi.Router) {
		r.Get("/ws", s.hub.ServeHTTP)
		r.Get("/reload.js", s.handleReloadScript)
		r.Get("/highlight.css", s.handleHighlightCSS)
		r.Get("/health", s.handleHealth)
		r.Get("/errors", s.handleErrors)
		r.Get("/report", s.handleReport)
		r.Post("/rebuild", s.handleRebuild)
		if s.metrics != nil {
			r.Handle("/metrics", s.metrics)
		}
	})

	s.router.Get("/*", s.handleArtifact)
	s.router.Head("/*", s.handleArtifact)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the address the server listens on once started.
func (s *Server) Addr() string {
	s.serverMutex.Lock()
	defer s.serverMutex.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return net.JoinHostPort(s.cfg.Serve.Host, strconv.Itoa(s.cfg.Serve.Port))
}

// Start listens on serve.host:serve.port and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Serve.Host, strconv.Itoa(s.cfg.Serve.Port)))
	if err != nil {
		return fmt.Errorf("listening for preview: %w", err)
	}

	s.serverMutex.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "preview server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.hub.Shutdown()
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("preview server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down preview server: %w", err)
	}
	return nil
}

// Shutdown disconnects browsers without waiting for Start's context.
func (s *Server) Shutdown() {
	s.hub.Shutdown()
}

// NotifyReload tells connected browsers about a finished cycle. Committed
// cycles that changed routes trigger a reload; failing entities raise the
// error overlay.
func (s *Server) NotifyReload(report *engine.BuildReport) {
	if report == nil || !s.cfg.Serve.LiveReload {
		return
	}
	ctx := context.Background()

	if report.Committed() && len(report.Written)+len(report.Removed) > 0 {
		routes := make([]string, 0, len(report.Written)+len(report.Removed))
		routes = append(routes, report.Written...)
		routes = append(routes, report.Removed...)
		msg := websocket.Message{
			Type:       websocket.MessageReload,
			CycleID:    report.CycleID,
			Generation: report.Generation,
			Routes:     routes,
		}
		if err := s.hub.Broadcast(msg); err != nil {
			s.logger.Warn(ctx, err, "reload notification dropped")
		}
	}

	if failing := len(s.session.Errors()); failing > 0 {
		msg := websocket.Message{
			Type:    websocket.MessageErrors,
			CycleID: report.CycleID,
			Errors:  failing,
		}
		if err := s.hub.Broadcast(msg); err != nil {
			s.logger.Warn(ctx, err, "error notification dropped")
		}
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"state":      s.session.State().String(),
		"artifacts":  snap.Len(),
		"generation": snap.Generation,
		"clients":    s.hub.Clients(),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report := s.session.LastReport()
	if report == nil {
		http.Error(w, "no build has run yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleRebuild queues a full build on the orchestrator. Without one the
// build runs in place, detached from the request so a client hanging up
// does not cancel it.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator != nil {
		s.orchestrator.RequestRebuild()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	ctx := context.WithoutCancel(r.Context())
	report, err := s.session.FullBuild(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "requested rebuild failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.NotifyReload(report)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHighlightCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(s.session.HighlightCSS()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
