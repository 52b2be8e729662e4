// Package api provides the admin HTTP surface of the ConsultOS bot: health
// checks, questionnaire reloads, slot management, and answer export.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/booking"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/questionnaire"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/store"
)

// DefaultAddr is the default listen address for the admin API.
const DefaultAddr = ":8080"

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// Opts holds configuration options for the admin API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the admin API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server hosts the admin endpoints.
type Server struct {
	addr     string
	registry *questionnaire.Registry
	source   questionnaire.DefinitionSource
	store    store.Store
	booking  *booking.Service
	httpSrv  *http.Server
}

// NewServer creates the admin API server based on provided options.
func NewServer(registry *questionnaire.Registry, source questionnaire.DefinitionSource, st store.Store, bookings *booking.Service, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	// Fallback to environment variables if not provided via options
	if cfg.Addr == "" {
		cfg.Addr = os.Getenv("API_ADDR")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	slog.Debug("API server config loaded", "addr", cfg.Addr)

	return &Server{
		addr:     cfg.Addr,
		registry: registry,
		source:   source,
		store:    st,
		booking:  bookings,
	}
}

// Run starts the HTTP server and blocks until the context is canceled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/reload", s.reloadHandler)
	mux.HandleFunc("/slots", s.slotsHandler)
	mux.HandleFunc("/answers", s.answersHandler)

	s.httpSrv = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Admin API listening", "addr", s.addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Admin API shutdown failed", "error", err)
			return err
		}
		slog.Info("Admin API stopped")
		return ctx.Err()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Admin API listener failed", "error", err)
			return err
		}
		return nil
	}
}
