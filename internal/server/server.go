// Package server exposes the daemon's health, run status and metrics over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"git.home.luguber.info/inful/wikiexport/internal/eventstore"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
	"git.home.luguber.info/inful/wikiexport/internal/server/middleware"
	"git.home.luguber.info/inful/wikiexport/internal/server/responses"
	"git.home.luguber.info/inful/wikiexport/internal/version"
)

// Daemon is the view of the running daemon the handlers need.
type Daemon interface {
	StartTime() time.Time
	State() string
	Interval() time.Duration
	Corpora() []string
	// Trigger requests an export run. It reports false when one is already pending.
	Trigger(force bool) bool
}

// RunHistory is the read model of past and active runs.
type RunHistory interface {
	GetHistory() []*eventstore.RunSummary
	GetActiveRun() *eventstore.RunSummary
	GetLastCompletedRun() *eventstore.RunSummary
	GetRun(runID string) (*eventstore.RunSummary, bool)
}

// Server serves the daemon endpoints.
type Server struct {
	Addr    string
	router  *chi.Mux
	server  *http.Server
	daemon  Daemon
	history RunHistory
	metrics http.Handler
	errs    *errors.HTTPErrorAdapter
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithHistory serves run history from h.
func WithHistory(h RunHistory) Option { return func(s *Server) { s.history = h } }

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server for d listening on addr.
func New(addr string, d Daemon, opts ...Option) *Server {
	s := &Server{
		Addr:   addr,
		router: chi.NewRouter(),
		daemon: d,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.errs = errors.NewHTTPErrorAdapter(s.logger)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Chain(s.logger, s.errs))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/status/runs/{id}", s.handleRun)
	s.router.Post("/runs", s.handleTrigger)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics)
	}

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.errs.WriteErrorResponse(w, r, errors.NewError(errors.CategoryNotFound, "no such endpoint").
			WithSeverity(errors.SeverityInfo).WithContext("path", r.URL.Path).Build())
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.errs.WriteErrorResponse(w, r, errors.ValidationError("invalid HTTP method").
			WithSeverity(errors.SeverityInfo).WithContext("method", r.Method).Build())
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting status server", slog.String("addr", s.Addr))
	if err := s.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.WrapError(err, errors.CategoryDaemon, "status server failed").
			WithContext("addr", s.Addr).Build()
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, &responses.HealthResponse{
		Status:       "healthy",
		Timestamp:    time.Now().UTC(),
		Version:      version.Version,
		Uptime:       time.Since(s.daemon.StartTime()).Seconds(),
		DaemonStatus: s.daemon.State(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := &responses.StatusResponse{
		Status:    s.daemon.State(),
		StartTime: s.daemon.StartTime(),
		Uptime:    time.Since(s.daemon.StartTime()).Seconds(),
		Interval:  s.daemon.Interval().String(),
		Corpora:   s.daemon.Corpora(),
		History:   []*eventstore.RunSummary{},
	}
	if s.history != nil {
		resp.Active = s.history.GetActiveRun()
		resp.Last = s.history.GetLastCompletedRun()
		resp.History = s.history.GetHistory()
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		run *eventstore.RunSummary
		ok  bool
	)
	if s.history != nil {
		run, ok = s.history.GetRun(id)
	}
	if !ok {
		s.errs.WriteErrorResponse(w, r, errors.NewError(errors.CategoryNotFound, "run not found").
			WithSeverity(errors.SeverityInfo).WithContext("run_id", id).Build())
		return
	}
	s.writeJSON(w, r, http.StatusOK, run)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			s.errs.WriteErrorResponse(w, r, errors.ValidationError("force must be a boolean").
				WithSeverity(errors.SeverityInfo).WithContext("force", v).Build())
			return
		}
		force = parsed
	}
	if !s.daemon.Trigger(force) {
		s.writeJSON(w, r, http.StatusConflict, &responses.TriggerResponse{Status: "pending", Force: force})
		return
	}
	s.writeJSON(w, r, http.StatusAccepted, &responses.TriggerResponse{Status: "queued", Force: force})
}

// writeJSON encodes into a buffer first so a failed encode never sends a partial body.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if p := r.URL.Query().Get("pretty"); p == "1" || p == "true" {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		s.errs.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to encode response").Build())
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Error("Failed writing JSON response body", logfields.Error(err))
	}
}
