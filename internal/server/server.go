// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It decides:
//   - which database backend serves the repositories
//   - which URL patterns map to which handler methods
//   - which middleware guards which routes
//   - how the server starts and stops
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → repository.Store (sqlite or postgres)
//	             → service.{Auth,User,Message}Service
//	             → handler.{Auth,User,Message,Home}Handler
//
// Everything is assembled in one place (NewWithStore/setupRoutes) rather
// than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/sakif/warbler/internal/auth"
	"github.com/sakif/warbler/internal/config"
	"github.com/sakif/warbler/internal/handler"
	"github.com/sakif/warbler/internal/metrics"
	"github.com/sakif/warbler/internal/middleware"
	"github.com/sakif/warbler/internal/repository"
	"github.com/sakif/warbler/internal/repository/gormdb"
	sqliteRepo "github.com/sakif/warbler/internal/repository/sqlite"
	"github.com/sakif/warbler/internal/service"
	"github.com/sakif/warbler/internal/session"
	"github.com/sakif/warbler/internal/view"
)

// csrfTokenTTL matches the session lifetime, so a form left open in a tab
// stays submittable as long as the login does.
const csrfTokenTTL = 16 * time.Hour

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store. Start closes it after the HTTP server has
// drained, so no request ever runs against a closed pool.
type Server struct {
	router  *chi.Mux
	config  config.Config
	log     logrus.FieldLogger
	store   repository.Store
	metrics *metrics.Metrics
}

// New opens the configured database and builds the server on top of it.
func New(cfg config.Config, log logrus.FieldLogger) (*Server, error) {
	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	s, err := NewWithStore(cfg, store, log)
	if err != nil {
		store.Close() // Clean up DB if route setup fails
		return nil, err
	}
	return s, nil
}

// openStore picks the backend for cfg.DBDriver. SQLite goes through
// database/sql; PostgreSQL goes through gorm.
func openStore(cfg config.Config, log logrus.FieldLogger) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		store, err := gormdb.OpenPostgres(cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("opening postgres database: %w", err)
		}
		return store, nil
	default:
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite database %s: %w", cfg.DBPath, err)
		}
		return db, nil
	}
}

// NewWithStore builds the server on an already opened store. The server
// takes ownership of store.
func NewWithStore(cfg config.Config, store repository.Store, log logrus.FieldLogger) (*Server, error) {
	views, err := view.New()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	tokens, err := auth.NewTokenService(cfg.Secret, "warbler", csrfTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		log:     log,
		store:   store,
		metrics: metrics.New(),
	}
	s.setupRoutes(views, tokens)
	return s, nil
}

// Handler returns the root handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET       /                               → timeline or landing page
// GET/POST  /signup, /login                 → account creation and login
// POST      /logout                         → end the session
// GET       /users                          → directory and search
// GET       /users/{id}[/following|followers|likes]
// POST      /users/follow/{id}, /users/stop-following/{id}
// GET/POST  /users/profile                  → edit own profile
// POST      /users/delete                   → delete own account
// GET/POST  /messages/new
// GET       /messages/{id}
// POST      /messages/{id}/delete|like|unlike
// GET       /metrics, /static/*
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns the id the logger prints
//  2. RealIP: the rate limiter keys on the client address
//  3. Recoverer: a panic becomes a 500 that is still logged and counted
//  4. Logger, Metrics: observe the final status
//  5. NoCache: pages carry per-user data and csrf tokens
//  6. Identify: only on page routes
//  7. RequireUser before RequireCSRF on member routes
func (s *Server) setupRoutes(views *view.Renderer, tokens *auth.TokenService) {
	cfg := s.config

	sessions := session.NewManager(cfg.Secret, session.Options{Secure: cfg.SecureCookies}, s.log)
	csrf := auth.NewCSRF(tokens)
	passwords := auth.NewPasswordService(cfg.BcryptCost)

	authService := service.NewAuthService(s.store, passwords, s.metrics, s.log)
	userService := service.NewUserService(s.store, s.metrics, s.log)
	messageService := service.NewMessageService(s.store, s.metrics, s.log)

	responder := handler.NewResponder(views, sessions, csrf, s.log)
	authHandler := handler.NewAuthHandler(responder, authService, s.metrics)
	userHandler := handler.NewUserHandler(responder, userService, authService)
	messageHandler := handler.NewMessageHandler(responder, messageService, userService)
	homeHandler := handler.NewHomeHandler(responder, messageService, userService)

	limiter := middleware.NewRateLimiter(cfg.AuthRatePerMinute, cfg.AuthRateBurst, s.metrics, s.log)
	identify := auth.Identify(sessions, authService, s.log)
	requireUser := auth.RequireUser(sessions, s.log)
	requireCSRF := auth.RequireCSRF(csrf, sessions, s.log)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.log))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.NoCache)

	// === Static Files and Metrics ===
	fileServer := http.FileServer(http.Dir(cfg.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// === Pages ===
	s.router.Group(func(r chi.Router) {
		r.Use(identify)

		r.Get("/", homeHandler.Home)

		r.Get("/signup", authHandler.ShowSignup)
		r.With(requireCSRF, limiter.Limit).Post("/signup", authHandler.Signup)
		r.Get("/login", authHandler.ShowLogin)
		r.With(requireCSRF, limiter.Limit).Post("/login", authHandler.Login)

		// An anonymous visitor is sent to the landing page before the
		// token is looked at.
		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Use(requireCSRF)

			r.Post("/logout", authHandler.Logout)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", userHandler.List)
				r.Get("/profile", userHandler.EditProfile)
				r.Post("/profile", userHandler.UpdateProfile)
				r.Post("/delete", userHandler.Delete)
				r.Post("/follow/{id}", userHandler.Follow)
				r.Post("/stop-following/{id}", userHandler.Unfollow)
				r.Get("/{id}", userHandler.Show)
				r.Get("/{id}/following", userHandler.Following)
				r.Get("/{id}/followers", userHandler.Followers)
				r.Get("/{id}/likes", userHandler.Likes)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Get("/new", messageHandler.New)
				r.Post("/new", messageHandler.Create)
				r.Get("/{id}", messageHandler.Show)
				r.Post("/{id}/delete", messageHandler.Delete)
				r.Post("/{id}/like", messageHandler.Like)
				r.Post("/{id}/unlike", messageHandler.Unlike)
			})
		})
	})

	// The 404 page shows the nav of whoever is logged in.
	s.router.NotFound(identify(http.HandlerFunc(responder.NotFound)).ServeHTTP)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.log.WithError(err).Error("closing database")
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.log.WithFields(logrus.Fields{
			"port":   s.config.Port,
			"url":    fmt.Sprintf("http://localhost:%d", s.config.Port),
			"driver": s.config.DBDriver,
		}).Info("server starting")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.log.WithField("signal", sig.String()).Info("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.log.Info("server stopped gracefully")
	}

	return nil
}
