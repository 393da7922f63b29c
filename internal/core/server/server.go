package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/site-viewer/internal/core/health"
	middleware "github.com/mohammed-shakir/site-viewer/internal/core/middleware"
	"github.com/mohammed-shakir/site-viewer/internal/core/router"
	"github.com/mohammed-shakir/site-viewer/internal/metrics"
)

// NewHandler assembles probes, metrics and the site API behind the common
// middleware stack. mp may be nil when metrics are disabled.
func NewHandler(logger *slog.Logger, mp *metrics.Provider, rr health.ReadinessReporter, api *router.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(rr))
	if mp != nil {
		r.Method(http.MethodGet, mp.Path(), mp.Handler())
	}
	api.Routes(r)
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, addr string, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
