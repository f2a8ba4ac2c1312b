// Package server wires the router, middleware and handlers together and owns
// the HTTP server lifecycle. It is the composition root: the GitHub client,
// the optional shared cache and the coordinator are all assembled in New.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/statscard/internal/cache"
	"github.com/sakif/statscard/internal/github"
	"github.com/sakif/statscard/internal/handler"
	"github.com/sakif/statscard/internal/middleware"
	"github.com/sakif/statscard/internal/service"
)

// Config holds server configuration, loaded from the environment in main.
type Config struct {
	Port          int
	GitHubToken   string        // upstream bearer token; empty means every card request fails with a credentials error
	MemcachedAddr string        // optional shared cache address; empty disables the layer
	CacheTTL      time.Duration // zero means service.DefaultTTL
}

// Server is the HTTP server and its wired dependencies.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
}

// New assembles the dependency chain:
// github.Client → service.StatsService → handler.CardHandler → routes.
// The shared cache is feature-detected here, once, not per request.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}

	var shared cache.Snapshots
	if cfg.MemcachedAddr != "" {
		shared = cache.NewMemcached(cfg.MemcachedAddr)
		logger.Info("shared cache enabled", slog.String("addr", cfg.MemcachedAddr))
	} else {
		logger.Info("shared cache disabled (MEMCACHED_ADDR not set)")
	}

	client := github.NewClient(cfg.GitHubToken, logger)
	stats := service.NewStatsService(client, shared, cfg.GitHubToken != "", cfg.CacheTTL, logger)
	cards := handler.NewCardHandler(stats, logger)

	s.setupRoutes(cards)
	return s, nil
}

func (s *Server) setupRoutes(cards *handler.CardHandler) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	s.router.Get("/healthz", cards.HandleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/card/{username}", cards.HandleCard)
	})
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully,
// giving in-flight requests 30 seconds to finish.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.Bool("github_token_configured", s.config.GitHubToken != ""),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
