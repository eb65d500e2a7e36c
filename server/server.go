// Package server provides HTTP server management and lifecycle handling for the drug portal API.
// It includes server setup, middleware configuration, route management, and graceful shutdown
// capabilities with proper error handling and logging.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/giygas/drug-portal-api/config"
	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/giygas/drug-portal-api/logging"
	"github.com/giygas/drug-portal-api/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// rateLimiterSweep is how often idle client buckets are dropped
const rateLimiterSweep = 30 * time.Minute

// Server represents the HTTP server
type Server struct {
	server      *http.Server
	router      chi.Router
	handler     interfaces.HTTPHandler
	rateLimiter *RateLimiter
	config      *config.Config
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, handler interfaces.HTTPHandler) *Server {
	router := chi.NewRouter()
	ctx, cancel := context.WithCancel(context.Background())

	server := &Server{
		server: &http.Server{
			Handler:      router,
			Addr:         cfg.Address + ":" + cfg.Port,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second, // chat calls and cold letter fetches
			IdleTimeout:  60 * time.Second,
		},
		router:      router,
		handler:     handler,
		rateLimiter: NewRateLimiter(),
		config:      cfg,
		ctx:         ctx,
		cancel:      cancel,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// Router exposes the configured router, mostly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	if s.config.Env == config.EnvProduction {
		s.router.Use(BlockDirectAccessMiddleware) // Put BEFORE RealIPMiddleware to see original RemoteAddr
	}
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.LoggingMiddleware(logging.With("http")))
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  func(r *http.Request, origin string) bool { return true }, // echoed back, credentials forbid "*"
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Remaining"},
		AllowCredentials: true, // session cookie
		MaxAge:           300,
	}))
	s.router.Use(RequestSizeMiddleware(s.config))
	s.router.Use(s.rateLimiter.Handler)
	s.router.Use(metrics.Metrics)
	s.router.Use(middleware.Compress(5, "application/json"))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	h := s.handler

	s.router.Get("/", h.ServeIndex)
	s.router.Get("/health", h.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/search", func(r chi.Router) {
		r.Get("/", h.SearchDrugs)
		r.Get("/suggest", h.SuggestDrugs)
		r.Get("/bmi", h.CalculateBMI)
		r.Get("/half-life", h.CalculateHalfLife)
	})

	s.router.Route("/database", func(r chi.Router) {
		r.Get("/", h.ServeDatabase)
		r.Get("/letters", h.ServeLetters)
		r.Put("/letter/{letter}", h.SelectLetter)
		r.Post("/more", h.LoadMore)
		r.Post("/reload", h.ReloadDatabase)
		r.Get("/drug/{id}", h.FindDrugByID)
		r.Get("/{letter}", h.ServeLetterPage)
	})

	s.router.Route("/chat", func(r chi.Router) {
		r.Get("/", h.ServeChat)
		r.Post("/key", h.SetChatKey)
		r.Post("/messages", h.SendChatMessage)
		r.Post("/reset", h.ResetChat)
	})

	s.router.Post("/image-upload", h.UploadImage)

	s.router.Route("/tts", func(r chi.Router) {
		r.Get("/messages", h.ServeSpeechMessages)
		r.Post("/messages", h.SaveSpeechMessage)
		r.Delete("/messages/{id}", h.DeleteSpeechMessage)
		r.Post("/options", h.SetSpeechOptions)
	})

	s.router.NotFound(h.NotFound)
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

// Start starts the server and blocks until it stops
func (s *Server) Start() error {
	go s.rateLimiter.Run(s.ctx, rateLimiterSweep)

	// Start profiling server if in development mode
	if s.config.IsDev() {
		s.startProfilingServer()
	}

	logging.Info(fmt.Sprintf("Starting server at: %s:%s", s.config.Address, s.config.Port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	s.cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		// If graceful shutdown fails, force close
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}

// startProfilingServer starts the pprof profiling server in development mode
func (s *Server) startProfilingServer() {
	debugMux := http.NewServeMux()
	debugMux.HandleFunc("/debug/pprof/", pprof.Index)
	debugMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	debugMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	debugMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	debugMux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	go func() {
		logging.Info("Profiling server started at http://localhost:6060/debug/pprof/")
		if err := http.ListenAndServe("localhost:6060", debugMux); err != nil {
			logging.Warn("Profiling server failed", "error", err)
		}
	}()
}
