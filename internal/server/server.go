// Package server is the composition root: it opens the store, builds the
// services and handlers, and mounts them on one chi router.
//
// Dependency chain built by New:
//
//	config.Config
//	  → store (postgres when DATABASE_URL is set, sqlite otherwise)
//	  → auth.TokenService, auth.GitHubProvider
//	  → service.IdentityLinker → service.AuthService
//	  → handler.AuthHandler, handler.HealthHandler
//
// Routes:
//
//	GET  /healthz                         → liveness + database ping
//	GET  /metrics                         → Prometheus exposition
//	GET  /sessions/{provider}/authorize   → redirect to consent page
//	POST /sessions/{provider}             → code → session token
//	GET  /profile                         → signed-in user (Bearer token)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/saas-rbac/internal/auth"
	"github.com/sakif/saas-rbac/internal/config"
	"github.com/sakif/saas-rbac/internal/handler"
	"github.com/sakif/saas-rbac/internal/middleware"
	"github.com/sakif/saas-rbac/internal/repository"
	pgRepo "github.com/sakif/saas-rbac/internal/repository/postgres"
	sqliteRepo "github.com/sakif/saas-rbac/internal/repository/sqlite"
	"github.com/sakif/saas-rbac/internal/service"
)

// Store is a repository backend owned by the server.
type Store interface {
	repository.IdentityStore
	Ping(ctx context.Context) error
	Close() error
}

type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     Store
}

// New opens the configured store and wires every route. reg receives both
// the HTTP and the sign-in flow metrics and is served on /metrics.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, reg *prometheus.Registry) (*Server, error) {
	db, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(reg); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// OpenStore picks the backend: Postgres (after migrating) when DatabaseURL
// is set, the SQLite file at DBPath otherwise.
func OpenStore(ctx context.Context, cfg config.Config) (Store, error) {
	if cfg.DatabaseURL != "" {
		if err := pgRepo.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		db, err := pgRepo.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (s *Server) setupRoutes(reg *prometheus.Registry) error {
	sessions, err := auth.NewTokenService(s.config.Session.JWTSecret, s.config.Session.TTL)
	if err != nil {
		return fmt.Errorf("creating session issuer: %w", err)
	}

	var providers []service.IdentityProvider
	if s.config.GitHub.Enabled() {
		providers = append(providers, auth.NewGitHubProvider(s.config.GitHub, nil, s.logger))
	} else {
		s.logger.Warn("GitHub credentials not set, GitHub sign-in disabled")
	}

	linker := service.NewIdentityLinker(s.db, s.logger)
	authService := service.NewAuthService(providers, linker, sessions, s.db, service.NewMetrics(reg), s.logger)
	authHandler := handler.NewAuthHandler(authService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.NewHTTPMetrics(reg).Handler)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	s.router.Post("/sessions/{provider}", authHandler.HandleCreateSession)
	s.router.Get("/sessions/{provider}/authorize", authHandler.HandleAuthorize)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(authService))
		r.Get("/profile", authHandler.HandleProfile)
	})

	return nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      otelhttp.NewHandler(s.router, "saas-rbac"),
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
			slog.Bool("postgres", s.config.DatabaseURL != ""),
			slog.Bool("github", s.config.GitHub.Enabled()),
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
