package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 30 * time.Second

// Server wraps the HTTP server and its lifecycle.
type Server struct {
	container *Container
	srv       *http.Server
}

// NewServer creates a new HTTP server with routes.
func NewServer(container *Container) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", container.Config.Port),
		Handler:      otelhttp.NewHandler(NewMux(container), "chart-ident"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return &Server{
		container: container,
		srv:       srv,
	}
}

// NewMux registers the webhook receiver and the probes.
func NewMux(container *Container) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /webhook", container.WebhookHandler)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, _ *http.Request) {
		if !container.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ready")
	})
	return mux
}

// Run starts background dependencies and the server, and shuts both down
// gracefully once ctx is done or either of them fails.
func (s *Server) Run(ctx context.Context) error {
	log := s.container.Logger

	errCh := make(chan error, 2)
	go func() {
		log.Info("starting server", slog.Int("port", s.container.Config.Port))
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()
	// /ready reports 503 until the first Argo CD sync finishes
	go func() {
		if err := s.container.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down", "reason", context.Cause(ctx))
	case runErr = <-errCh:
		log.Error("shutting down after error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := s.container.WebhookHandler.Drain(shutdownCtx); err != nil {
		log.Warn("in-flight checks did not finish before shutdown", "error", err)
	}
	if err := s.container.Close(shutdownCtx); err != nil {
		log.Warn("closing dependencies", "error", err)
	}

	log.Info("server stopped")
	return runErr
}
