package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// HealthCheck probes one external dependency for /healthz.
type HealthCheck func(ctx context.Context) error

// Deps wires the core services into the server.
type Deps struct {
	Survey      SurveyStepper
	Reviews     ReviewProcessor
	Assignments AssignmentManager
	Economy     EconomyService
	Vocab       VocabReader
	Verifier    TokenVerifier
	// Checks maps a dependency name to its health probe.
	Checks map[string]HealthCheck
}

// Config holds the HTTP listener settings.
type Config struct {
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	RequestTimeout     time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
	AdminToken         string
}

// Server is the JSON HTTP front of the learning core.
type Server struct {
	router         *mux.Router
	server         *http.Server
	deps           Deps
	metrics        *Metrics
	verifier       TokenVerifier
	limiter        *keyedLimiter
	adminToken     string
	requestTimeout time.Duration
	startedAt      time.Time
}

// NewServer builds the server and its routes.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Survey == nil || deps.Reviews == nil || deps.Assignments == nil ||
		deps.Economy == nil || deps.Vocab == nil {
		return nil, fmt.Errorf("http server requires all core services")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("http server requires a token verifier")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	s := &Server{
		router:         mux.NewRouter(),
		deps:           deps,
		metrics:        NewMetrics(),
		verifier:       deps.Verifier,
		limiter:        newKeyedLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		adminToken:     cfg.AdminToken,
		requestTimeout: cfg.RequestTimeout,
		startedAt:      time.Now(),
	}
	s.metrics.SnapshotSenses.Set(float64(deps.Vocab.Stats().SenseCount))
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.corsMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	// The survey is anonymous-capable; sessions carry their own ids.
	open := s.router.PathPrefix("/v1").Subrouter()
	open.Use(s.rateLimitMiddleware)
	open.HandleFunc("/survey/step", s.handleSurveyStep).Methods(http.MethodPost)

	authed := s.router.PathPrefix("/v1").Subrouter()
	authed.Use(s.authMiddleware)
	authed.Use(s.rateLimitMiddleware)

	authed.HandleFunc("/reviews", s.handleSubmitReview).Methods(http.MethodPost)
	authed.HandleFunc("/reviews/retention", s.handleRetention).Methods(http.MethodGet)
	authed.HandleFunc("/reviews/due", s.handleDueCards).Methods(http.MethodGet)
	authed.HandleFunc("/reviews/leeches", s.handleLeeches).Methods(http.MethodGet)

	authed.HandleFunc("/assignment", s.handleGetAssignment).Methods(http.MethodGet)
	authed.HandleFunc("/assignment/migrate", s.handleMigrate).Methods(http.MethodPost)

	authed.HandleFunc("/economy/balance", s.handleBalance).Methods(http.MethodGet)
	authed.HandleFunc("/economy/ledger", s.handleLedger).Methods(http.MethodGet)
	authed.HandleFunc("/economy/spend", s.handleSpend).Methods(http.MethodPost)
	authed.HandleFunc("/economy/events", s.handleEvent).Methods(http.MethodPost)
	authed.HandleFunc("/economy/events/mcq", s.handleMCQ).Methods(http.MethodPost)

	authed.HandleFunc("/vocab/senses/{id}", s.handleGetSense).Methods(http.MethodGet)
	authed.HandleFunc("/vocab/words/{lemma}", s.handleGetWord).Methods(http.MethodGet)

	admin := s.router.PathPrefix("/v1").Subrouter()
	admin.Use(s.authMiddleware)
	admin.Use(s.adminMiddleware)
	admin.HandleFunc("/assignment/stats", s.handleAssignmentStats).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no such route", Kind: "not_found"})
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving requests until Shutdown or a listener failure.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

func muxCurrentRoute(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	if tmpl, err := route.GetPathTemplate(); err == nil {
		return tmpl
	}
	return ""
}
