// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes stored benchmark runs over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string

	// ServiceName labels the otelgin spans.
	ServiceName string

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ServiceName:     "jsonbench",
		ShutdownTimeout: 5 * time.Second,
		Logger:          slog.Default(),
	}
}

// NewRouter builds the gin engine.
//
// Routes:
//
//	GET /healthz
//	GET /metrics                   (only when metrics is non-nil)
//	GET /v1/runs?limit=N
//	GET /v1/runs/:id
//	GET /v1/runs/:id/chart.png
//	GET /v1/runs/:id/chart.html
func NewRouter(cfg Config, store RunStore, metrics http.Handler) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))

	router.GET("/healthz", HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.GET("", ListRuns(store, logger))
			runs.GET("/:id", GetRun(store, logger))
			runs.GET("/:id/chart.png", GetRunChart(store, logger))
			runs.GET("/:id/chart.html", GetRunChartHTML(store, logger))
		}
	}
	return router
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
//
// Outputs:
//   - error: Nil after a clean shutdown; the listen error otherwise.
func Serve(ctx context.Context, cfg Config, handler http.Handler) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("jsonbench server listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	logger.Info("jsonbench server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
