// Package core provides the HTTP chassis for the subledger service: a chi
// router with the cross-cutting middleware chain (panic recovery, request
// correlation, structured logging, timeouts) applied before requests reach
// the webhook and health handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"subledger/internal/config"
)

// defaultRequestTimeout is the soft deadline applied to request contexts.
// Stripe gives webhook endpoints well under a minute before treating the
// delivery as failed, so processing must finish comfortably inside that.
const defaultRequestTimeout = 25 * time.Second

// Pinger is the health probe dependency, satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server encapsulates the HTTP dependencies of the service, allowing for
// injection during testing and distinct configuration per environment.
type Server struct {
	Config *config.Config
	Logger *slog.Logger
	DB     Pinger

	// WebhookHandler is mounted at POST /webhooks/stripe. Injected by the
	// entry point to avoid an import cycle between core and the handler
	// package.
	WebhookHandler http.Handler

	router *chi.Mux
}

// NewServer initializes the server chassis. The caller mounts routes via
// MountRoutes after setting WebhookHandler.
func NewServer(cfg *config.Config, logger *slog.Logger, pinger Pinger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		DB:     pinger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain and the service routes.
// Ordering matters: Recoverer is outermost so it catches panics from every
// later stage, and RequestID runs before the logger so log lines carry the
// correlation ID.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))

	if s.WebhookHandler != nil {
		s.router.Method(http.MethodPost, "/webhooks/stripe", s.WebhookHandler)
	}
	s.router.Get("/health", s.HandleHealth)
}

// ListenAndServe runs the HTTP server until the context is canceled, then
// drains in-flight requests within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.Config.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.Config.Server.ReadTimeout,
		WriteTimeout: s.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("http server draining")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
