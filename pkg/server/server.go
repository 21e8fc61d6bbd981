// Package server wires the document store, rules engine and admin
// surface into the emulator's HTTP server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	gql "github.com/mnohosten/flamestore/pkg/graphql"
	"github.com/mnohosten/flamestore/pkg/metrics"
	"github.com/mnohosten/flamestore/pkg/server/handlers"
	"github.com/mnohosten/flamestore/pkg/store"
)

// Server is the emulator's HTTP server
type Server struct {
	config  *Config
	store   *store.Store
	rules   *handlers.RulesManager
	router  *chi.Mux
	httpSrv *http.Server
	metrics *metrics.Metrics
	log     *logrus.Logger

	startTime time.Time
	stopSweep chan struct{}
}

// New creates a server instance around a fresh store
func New(config *Config) (*Server, error) {
	log := logrus.New()
	if config.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	var m *metrics.Metrics
	if config.EnableMetrics {
		m = metrics.New("flamestore")
	}

	st := store.New(store.WithIdleTimeout(config.TxnIdleTimeout))
	if m != nil {
		m.RegisterDocumentCount("flamestore", st.Len)
	}

	rules := handlers.NewRulesManager(config.EnforceRules, m, log)
	if config.RulesFile != "" {
		source, err := os.ReadFile(config.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("read rules file: %w", err)
		}
		if err := rules.SetSource(string(source)); err != nil {
			return nil, fmt.Errorf("load rules file %s: %w", config.RulesFile, err)
		}
	}

	srv := &Server{
		config:    config,
		store:     st,
		rules:     rules,
		router:    chi.NewRouter(),
		metrics:   m,
		log:       log,
		startTime: time.Now(),
		stopSweep: make(chan struct{}),
	}

	srv.setupMiddleware()
	if err := srv.setupRoutes(); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return srv, nil
}

// setupMiddleware configures the HTTP middleware stack
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableLogging {
		s.router.Use(s.requestLogger)
	}
	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(s.requestSizeLimit)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() error {
	h := handlers.New(s.store, s.rules, s.metrics, s.log)

	instrument := func(route string) func(http.Handler) http.Handler {
		if s.metrics == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return s.metrics.Middleware(route)
	}

	s.router.Route("/v1/projects/{project}/databases/{database}", func(r chi.Router) {
		r.With(instrument("batchGet")).Post("/documents:batchGet", h.BatchGet)
		r.With(instrument("commit")).Post("/documents:commit", h.Commit)
		r.With(instrument("beginTransaction")).Post("/documents:beginTransaction", h.BeginTransaction)
		r.With(instrument("rollback")).Post("/documents:rollback", h.Rollback)

		r.Delete("/documents", h.Reset)
		r.With(instrument("get")).Get("/documents/*", h.GetOrList)
		r.With(instrument("patch")).Patch("/documents/*", h.PatchDocument)
		r.With(instrument("delete")).Delete("/documents/*", h.DeleteDocument)
	})

	s.router.Put("/emulator/v1/projects/{project}:securityRules", h.PutRules)
	s.router.Get("/emulator/v1/projects/{project}:securityRules", h.GetRules)
	s.router.Post("/emulator/v1/projects/{project}:evalRules", h.EvalRules)
	s.router.Post("/emulator/v1/projects/{project}:export", h.Export)
	s.router.Post("/emulator/v1/projects/{project}:import", h.Import)
	s.router.Delete("/emulator/v1/projects/{project}/databases/{database}/documents", h.Reset)

	s.router.Get("/health", h.Health(s.startTime))
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	if s.config.EnableGraphQL {
		gqlHandler, err := gql.NewHandler(s.store)
		if err != nil {
			return fmt.Errorf("setup graphql: %w", err)
		}
		s.router.Post("/graphql", gqlHandler.ServeHTTP)
	}
	return nil
}

// Router exposes the configured router, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Store exposes the underlying document store
func (s *Server) Store() *store.Store {
	return s.store
}

// requestLogger logs one line per request
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
			"request":  middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}

// corsMiddleware handles CORS headers and preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.config.AllowedOrigins) > 0 {
			origin = s.config.AllowedOrigins[0]
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestSizeLimit bounds request body size
func (s *Server) requestSizeLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		next.ServeHTTP(w, r)
	})
}

// sweepLoop reaps idle-expired transactions until the server stops
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if removed := s.store.SweepExpired(); removed > 0 {
				s.log.WithField("count", removed).Debug("swept transactions")
				if s.metrics != nil {
					s.metrics.TransactionsExpired.Add(float64(removed))
				}
			}
		case <-s.stopSweep:
			return
		}
	}
}

// Start runs the server until an error or a shutdown signal
func (s *Server) Start() error {
	s.log.WithFields(logrus.Fields{
		"addr":  s.httpSrv.Addr,
		"rules": s.config.EnforceRules,
	}).Info("flamestore emulator starting")

	go s.sweepLoop()

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		close(s.stopSweep)
		return err
	case sig := <-sigChan:
		s.log.WithField("signal", sig.String()).Info("shutting down")
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	close(s.stopSweep)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("shutdown complete")
	return nil
}
