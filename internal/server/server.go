// Package server is recall's HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/errs"
	"github.com/lazypower/recall/internal/metrics"
	"github.com/lazypower/recall/internal/store"
)

// Options wires a Server. Engine and Store are required.
type Options struct {
	Engine    *engine.Engine
	Store     *store.Store
	Extractor engine.Extractor // nil uses pattern extraction
	Metrics   *metrics.Metrics
	Config    config.ServerConfig
	Logger    *slog.Logger
	Version   string
}

// Server is the recall HTTP API server.
type Server struct {
	engine    *engine.Engine
	db        *store.Store
	extractor engine.Extractor
	metrics   *metrics.Metrics
	cfg       config.ServerConfig
	limiter   *ipLimiter
	log       *slog.Logger
	router    chi.Router
	version   string
	started   time.Time
}

// New creates a Server and builds its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	def := config.Default().Server
	if opts.Config.MaxQueryChars <= 0 {
		opts.Config.MaxQueryChars = def.MaxQueryChars
	}
	if opts.Config.MaxResultsLimit <= 0 {
		opts.Config.MaxResultsLimit = def.MaxResultsLimit
	}
	if opts.Extractor == nil {
		opts.Extractor = engine.NewPatternExtractor(opts.Engine.Lexicon(), 0)
	}

	s := &Server{
		engine:    opts.Engine,
		db:        opts.Store,
		extractor: opts.Extractor,
		metrics:   opts.Metrics,
		cfg:       opts.Config,
		log:       opts.Logger,
		version:   opts.Version,
		started:   time.Now(),
	}
	if opts.Config.RateLimitPerMinute > 0 {
		s.limiter = newIPLimiter(opts.Config.RateLimitPerMinute)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)

	r.Get("/metrics", s.metrics.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Use(s.requireToken)

			r.Post("/query", s.handleQuery)
			r.Post("/extract", s.handleExtract)
			r.Post("/insights", s.handleAddInsight)
			r.Get("/insights/{id}", s.handleGetInsight)
			r.Post("/insights/{id}/supersede", s.handleSupersede)
			r.Get("/entities", s.handleEntities)
			r.Get("/status", s.handleStatus)
		})
	})

	s.router = r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps an error kind onto a status code.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	kind, ok := errs.KindOf(err)
	switch {
	case ok && kind == errs.KindValidation:
		status = http.StatusBadRequest
	case ok && kind == errs.KindNotFound:
		status = http.StatusNotFound
	case ok && kind == errs.KindPoolExhausted:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.log.Error("request failed", "path", r.URL.Path, "err", err)
	}
	body := map[string]string{"error": err.Error()}
	if ok {
		body["kind"] = kind.String()
	}
	writeJSON(w, status, body)
}
