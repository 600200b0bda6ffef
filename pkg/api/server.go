// Package api exposes the risk engine over HTTP.
package api

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riskd/risk-engine/internal/engine"
	"github.com/riskd/risk-engine/internal/limits"
	"github.com/riskd/risk-engine/internal/resolution"
	"github.com/riskd/risk-engine/internal/scenario"
	"github.com/riskd/risk-engine/internal/stream"
	"github.com/riskd/risk-engine/pkg/metrics"
	"github.com/riskd/risk-engine/pkg/utils/logger"
)

// Config holds the configuration for the API server.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server represents the API server.
type Server struct {
	config     Config
	router     *mux.Router
	httpServer *http.Server

	engine     *engine.Engine
	registry   *limits.Registry
	checker    *limits.Checker
	resolution *resolution.Manager
	scenarios  *scenario.Store
	hub        *stream.Hub
	recorder   *metrics.Recorder
	log        *logger.Logger
}

// NewServer creates a new API server over the engine and its subsystems.
func NewServer(
	config Config,
	eng *engine.Engine,
	registry *limits.Registry,
	checker *limits.Checker,
	resolutionManager *resolution.Manager,
	scenarios *scenario.Store,
	hub *stream.Hub,
	recorder *metrics.Recorder,
) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 30 * time.Second
	}

	server := &Server{
		config:     config,
		router:     mux.NewRouter(),
		engine:     eng,
		registry:   registry,
		checker:    checker,
		resolution: resolutionManager,
		scenarios:  scenarios,
		hub:        hub,
		recorder:   recorder,
		log:        logger.GetLogger("api.server"),
	}

	server.setupRoutes()
	return server
}

// Start starts the API server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.log.Infof("Starting API server on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop stops the API server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		s.log.Info("Stopping API server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.recoveryMiddleware)

	// Health check and Prometheus exposition sit outside the version prefix.
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler())

	// Event stream for limit and breach transitions.
	s.router.HandleFunc("/ws", s.hub.ServeWS)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Risk calculation endpoints
	risk := v1.PathPrefix("/risk").Subrouter()
	risk.HandleFunc("/calculate", s.handleCalculateRisk).Methods("POST")
	risk.HandleFunc("/decomposition", s.handleRiskDecomposition).Methods("POST")
	risk.HandleFunc("/jobs", s.handleSubmitCalibration).Methods("POST")
	risk.HandleFunc("/jobs/{id}", s.handleJobStatus).Methods("GET")

	// Scenario endpoints
	scenarios := v1.PathPrefix("/scenarios").Subrouter()
	scenarios.HandleFunc("", s.handleListScenarios).Methods("GET")
	scenarios.HandleFunc("", s.handleCreateScenario).Methods("POST")
	scenarios.HandleFunc("/analyze", s.handleAnalyzeScenarios).Methods("POST")
	scenarios.HandleFunc("/{id}", s.handleGetScenario).Methods("GET")
	scenarios.HandleFunc("/{id}", s.handleUpdateScenario).Methods("PUT")
	scenarios.HandleFunc("/{id}/montecarlo", s.handleRunMonteCarlo).Methods("POST")

	// Stress test endpoints
	stress := v1.PathPrefix("/stress").Subrouter()
	stress.HandleFunc("", s.handleCreateStressTest).Methods("POST")
	stress.HandleFunc("/{id}/run", s.handleRunStressTest).Methods("POST")

	// Limit monitoring endpoints
	limitRoutes := v1.PathPrefix("/limits").Subrouter()
	limitRoutes.HandleFunc("", s.handleCreateLimit).Methods("POST")
	limitRoutes.HandleFunc("/portfolio/{portfolioId}", s.handleListLimits).Methods("GET")
	limitRoutes.HandleFunc("/check/{portfolioId}", s.handleCheckLimits).Methods("POST")
	limitRoutes.HandleFunc("/{id}", s.handleGetLimit).Methods("GET")
	limitRoutes.HandleFunc("/{id}", s.handleDeleteLimit).Methods("DELETE")

	// Breach and resolution endpoints
	breaches := v1.PathPrefix("/breaches").Subrouter()
	breaches.HandleFunc("", s.handleListBreaches).Methods("GET")
	breaches.HandleFunc("/{id}", s.handleGetBreach).Methods("GET")
	breaches.HandleFunc("/{id}/resolution", s.handleCreatePlan).Methods("POST")
	breaches.HandleFunc("/{id}/resolution", s.handleGetPlanForBreach).Methods("GET")

	res := v1.PathPrefix("/resolution").Subrouter()
	res.HandleFunc("/{planId}", s.handleGetPlan).Methods("GET")
	res.HandleFunc("/{planId}/steps/{stepId}", s.handleUpdateStep).Methods("PUT")

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrw := newResponseWriter(w)

		next.ServeHTTP(wrw, r)

		s.log.Infof(
			"%s %s %s %d %s",
			r.RemoteAddr,
			r.Method,
			r.URL.Path,
			wrw.statusCode,
			time.Since(start),
		)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrw := newResponseWriter(w)

		next.ServeHTTP(wrw, r)

		if s.recorder != nil {
			s.recorder.RecordAPIRequest(r.Method, r.URL.Path, wrw.statusCode, time.Since(start))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Errorf("Panic in API handler: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader captures the status code and calls the underlying WriteHeader.
func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the wrapped writer so websocket upgrades work through
// the middleware chain.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}
