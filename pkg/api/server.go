// Package api serves an instrument profile catalog over HTTP.
//
// Routes live under /api/v1. Profiles are addressed by symbol; symbols that
// contain slashes must be path escaped (/api/v1/profiles/%2FESH24). Imports
// and exports speak the profile file format directly, with the container
// chosen by the ?name= suffix (.gz, .zip or plain).
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ssargent/ipfdb/pkg/store"
)

const defaultShutdownTimeout = 10 * time.Second

// NewRouter wires the API routes for server. Metrics registered on reg are
// served at /metrics.
func NewRouter(server *Server, reg *prometheus.Registry) http.Handler {
	metrics := server.metrics

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		if server.config.APIKey != "" {
			r.Use(metrics.InstrumentAuthMiddleware(apiKeyMiddleware(server.config.APIKey)))
		}

		r.Get("/health", metrics.InstrumentHandler("GET", "/api/v1/health", server.handleHealth))

		// Profiles
		r.Get("/profiles", metrics.InstrumentHandler("GET", "/api/v1/profiles", server.handleListProfiles))
		r.Get("/profiles/*", metrics.InstrumentHandler("GET", "/api/v1/profiles/{symbol}", server.handleGetProfile))
		r.Delete("/profiles/*", metrics.InstrumentHandler("DELETE", "/api/v1/profiles/{symbol}", server.handleDeleteProfile))

		// Bulk transfer
		r.Post("/import", metrics.InstrumentHandler("POST", "/api/v1/import", server.handleImport))
		r.Get("/export", metrics.InstrumentHandler("GET", "/api/v1/export", server.handleExport))
		r.Get("/imports", metrics.InstrumentHandler("GET", "/api/v1/imports", server.handleImports))
		r.Post("/refresh", metrics.InstrumentHandler("POST", "/api/v1/refresh", server.handleRefresh))

		// Diagnostics
		r.Get("/stats", metrics.InstrumentHandler("GET", "/api/v1/stats", server.handleStats))
	})

	return r
}

// StartServer serves the API until ctx is done, then shuts down gracefully.
// refresher may be nil.
func StartServer(ctx context.Context, catalog store.Store, refresher Refresher, config ServerConfig) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := NewServer(catalog, refresher, config, NewMetrics(reg))

	addr := net.JoinHostPort(config.Bind, strconv.Itoa(config.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(server, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start background metrics updater
	go server.startMetricsUpdater(ctx)

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("starting ipfdb REST API server",
			zap.String("addr", addr),
			zap.String("metrics", fmt.Sprintf("http://%s/metrics", addr)))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), timeout)
	defer done()

	server.logger.Info("shutting down REST API server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
