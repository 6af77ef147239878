// Package api exposes the portfolio services over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"portfolio-tracker/internal/config"
	"portfolio-tracker/internal/marketdata"
	"portfolio-tracker/internal/portfolio"
	"portfolio-tracker/internal/quotes"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Purger drops cached quotes.
type Purger interface {
	Purge()
}

// Deps are the services the server routes to.
type Deps struct {
	Portfolios *portfolio.PortfolioService
	Watchlists *portfolio.WatchlistService
	Users      *portfolio.UserService
	Settings   *portfolio.SettingsService
	// Quotes serves single-symbol lookups, normally through the cache.
	Quotes quotes.Source
	Market marketdata.API
	Cache  Purger
}

// Server is the HTTP front end.
type Server struct {
	router *chi.Mux
	server *http.Server
	logger *zap.Logger
	deps   Deps
}

// NewServer creates a server listening on cfg.Port.
func NewServer(cfg config.Server, deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger.Named("api-server"),
		deps:   deps,
	}

	s.setupMiddleware(cfg)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(cfg config.Server) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/me", s.handleMe)

		r.Route("/portfolios", func(r chi.Router) {
			r.Get("/", s.handleListPortfolios)
			r.Post("/", s.handleCreatePortfolio)
			r.Route("/{portfolioID}", func(r chi.Router) {
				r.Get("/", s.handleGetPortfolio)
				r.Patch("/", s.handleUpdatePortfolio)
				r.Delete("/", s.handleDeletePortfolio)
				r.Get("/valuation", s.handleValuation)
				r.Get("/allocation", s.handleAllocation)
				r.Get("/timeline", s.handleTimeline)
				r.Post("/positions", s.handleAddPosition)
				r.Patch("/positions/{positionID}", s.handleUpdatePosition)
				r.Delete("/positions/{positionID}", s.handleRemovePosition)
			})
		})

		r.Route("/watchlists", func(r chi.Router) {
			r.Get("/", s.handleListWatchlists)
			r.Post("/", s.handleCreateWatchlist)
			r.Route("/{watchlistID}", func(r chi.Router) {
				r.Get("/", s.handleGetWatchlist)
				r.Delete("/", s.handleDeleteWatchlist)
				r.Post("/symbols", s.handleAddWatchlistSymbol)
				r.Delete("/symbols/{symbol}", s.handleRemoveWatchlistSymbol)
				r.Get("/quotes", s.handleWatchlistQuotes)
			})
		})

		r.Get("/quotes/{symbol}", s.handleQuote)
		r.Get("/search", s.handleSearch)
		r.Get("/profile/{symbol}", s.handleProfile)
		r.Get("/news", s.handleNews)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/users", s.handleListUsers)
			r.Post("/users", s.handleCreateUser)
			r.Delete("/users/{userID}", s.handleDeleteUser)
			r.Get("/settings", s.handleListSettings)
			r.Get("/settings/{key}", s.handleGetSetting)
			r.Put("/settings/{key}", s.handlePutSetting)
			r.Delete("/quotes/cache", s.handlePurgeQuoteCache)
		})
	})
}

// Start runs the HTTP server in a new goroutine. Listen errors are sent on
// the returned channel, which is closed when the server stops.
func (s *Server) Start() <-chan error {
	errc := make(chan error, 1)
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		defer close(errc)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
			errc <- err
		}
	}()
	return errc
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
