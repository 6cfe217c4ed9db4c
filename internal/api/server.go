package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/eligibility"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(
	cfg domain.ServerConfig,
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	cooldown domain.CooldownStore,
	screener *eligibility.Screener,
	cat *catalog.Catalog,
	engineCfg domain.EngineConfig,
	version string,
) *Server {
	handler := NewHandler(repo, cache, bus, cooldown, screener, cat, engineCfg, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes
	router.Route("/api/v1", func(r chi.Router) {
		// Transaction scoring
		r.Post("/analyze-transaction", handler.AnalyzeTransaction)
		r.Post("/trigger-classify", handler.TriggerClassify)
		r.Post("/select-action", handler.SelectAction)

		// Recurring-profile scoring
		r.Post("/personalized-ranking", handler.PersonalizedRanking)
		r.Post("/estimate-rewards", handler.EstimateRewards)
		r.Post("/optimize-portfolio", handler.OptimizePortfolio)

		// Card catalog management
		r.Get("/cards", handler.ListCards)
		r.Post("/cards", handler.CreateCard)
		r.Post("/cards/reload", handler.ReloadCards)
		r.Get("/cards/{cardID}", handler.GetCard)
		r.Put("/cards/{cardID}", handler.UpdateCard)
		r.Delete("/cards/{cardID}", handler.DeleteCard)

		// Eligibility screen management
		r.Get("/screens", handler.ListScreens)
		r.Post("/screens", handler.CreateScreen)
		r.Post("/screens/reload", handler.ReloadScreens)
		r.Get("/screens/{screenID}", handler.GetScreen)

		// Recommendation audit trail
		r.Get("/users/{userID}/recommendations", handler.UserRecommendations)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
