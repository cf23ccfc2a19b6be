// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and routes.
// It decides:
//   - Which URL patterns map to which handler functions
//   - What middleware runs on which routes
//   - How the server starts and stops gracefully
//
// Dependency construction (store, Redis, services) lives in wire.go so the
// createsuperuser command can reuse it without an HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/account-scaffold/internal/auth"
	"github.com/sakif/account-scaffold/internal/config"
	"github.com/sakif/account-scaffold/internal/handler"
	"github.com/sakif/account-scaffold/internal/middleware"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store and the Redis client. Start closes both after
// the HTTP server has drained.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	deps   *Deps
}

// New builds the dependency graph and the router.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	deps, err := Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return newWithDeps(cfg, logger, deps), nil
}

func newWithDeps(cfg *config.Config, logger *slog.Logger, deps *Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                    → store ping
// POST   /api/create-user            → register, returns first token
// POST   /api/token-auth             → login, returns a new token
// GET    /api/users/{username}/      → own profile          [token]
// PUT    /api/users/{username}/      → replace profile      [token]
// PATCH  /api/users/{username}/      → partial update       [token]
// DELETE /api/users/{username}/      → delete account       [token]
//
// Every path also answers with or without a trailing slash.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns a unique ID, which Logger reads
//  2. RealIP: extracts real client IP from proxy headers
//  3. Logger: logs each request with timing info
//  4. Recoverer: catches panics and returns 500 instead of crashing
//  5. StripSlashes: "/api/create-user/" routes like "/api/create-user"
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.StripSlashes)

	writeErr := handler.ErrorWriter(s.logger)

	// Unknown paths and wrong methods get the same {"detail"} envelope as
	// every other error.
	s.router.NotFound(handler.NotFound)
	s.router.MethodNotAllowed(handler.MethodNotAllowed)

	healthHandler := handler.NewHealthHandler(s.deps.Store, s.logger)
	accountHandler := handler.NewAccountHandler(s.deps.Accounts, s.logger)
	authHandler := handler.NewAuthHandler(s.deps.Auth, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/create-user", accountHandler.HandleCreateUser)
		r.Post("/token-auth", authHandler.HandleTokenAuth)

		r.Route("/users/{username}", func(r chi.Router) {
			r.Use(auth.RequireToken(s.deps.Auth, writeErr))
			r.Get("/", accountHandler.HandleGet)
			r.Put("/", accountHandler.HandleUpdate)
			r.Patch("/", accountHandler.HandlePatch)
			r.Delete("/", accountHandler.HandleDelete)
		})
	})
}

// Close releases the store and Redis without serving.
func (s *Server) Close() error {
	return s.deps.Close()
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close Redis and the database (flushes WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.deps.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.Bool("postgres", s.config.UsesPostgres()),
			slog.Bool("redis", s.deps.Redis != nil),
			slog.String("tokenFormat", s.config.TokenFormat),
			slog.String("hasher", s.config.PasswordHasher),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
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
