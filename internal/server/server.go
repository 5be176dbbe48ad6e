// Package server provides the HTTP server and routing for lpsentinel.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/lpsentinel/internal/config"
	"github.com/aristath/lpsentinel/internal/database"
	"github.com/aristath/lpsentinel/internal/di"
	marketdatahandlers "github.com/aristath/lpsentinel/internal/marketdata/handlers"
	correlationhandlers "github.com/aristath/lpsentinel/internal/modules/correlation/handlers"
	monitoringhandlers "github.com/aristath/lpsentinel/internal/modules/monitoring/handlers"
	optimizationhandlers "github.com/aristath/lpsentinel/internal/modules/optimization/handlers"
	portfoliohandlers "github.com/aristath/lpsentinel/internal/modules/portfolio/handlers"
	rebalancinghandlers "github.com/aristath/lpsentinel/internal/modules/rebalancing/handlers"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container   // DI container with all services
	Jobs      *di.JobInstances // Optional, enables manual job triggering
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	c := cfg.Container

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: c,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			[]*database.DB{c.PositionsDB, c.HistoryDB},
			c.Caches,
			c.Monitor,
			c.Scheduler,
		),
	}
	if cfg.Jobs != nil {
		s.systemHandlers.SetJobs(cfg.Jobs.CacheCleanup, cfg.Jobs.CheckDatabases, cfg.Jobs.PrunePrices, cfg.Jobs.Vacuum)
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: the event stream is long-lived, the router enforces per-request timeouts
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the router (tests)
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	c := s.container

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", c.Metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		// Event stream stays outside the request timeout
		eventsStreamHandler := NewEventsStreamHandler(c.EventBus, s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			// System
			r.Get("/system/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/system/databases", s.systemHandlers.HandleDatabaseStats)
			r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
			r.Get("/cache/stats", s.systemHandlers.HandleCacheStats)
			r.Post("/cache/clear", s.systemHandlers.HandleCacheClear)

			// Stored snapshots (position source)
			portfoliohandlers.NewHandler(c.PortfolioService, s.log).RegisterRoutes(r)

			// Market data estimates and token prices
			marketdatahandlers.NewHandler(
				c.StaticMarketData,
				c.PriceRepo,
				c.PortfolioService,
				c.MarketData,
				s.log,
			).RegisterRoutes(r)

			// Cross-position analytics
			correlationhandlers.NewHandler(c.CorrelationEngine, c.PortfolioService, c.MarketData, s.log).RegisterRoutes(r)

			// Portfolio optimization
			optimizationhandlers.NewHandler(c.OptimizationService, c.PortfolioService, c.MarketData, s.log).RegisterRoutes(r)

			// Triggers, analyses and executions
			rebalancinghandlers.NewHandler(c.RebalancingService, s.log).RegisterRoutes(r)

			// Monitoring loop, alerts and health
			monitoringhandlers.NewHandler(c.Monitor, s.log).RegisterRoutes(r)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
