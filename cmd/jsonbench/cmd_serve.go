// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/jsonbench/pkg/ux"
	"github.com/AleutianAI/jsonbench/services/bench/history"
	"github.com/AleutianAI/jsonbench/services/bench/server"
	"github.com/AleutianAI/jsonbench/services/bench/telemetry"
)

var serveAddr string

func runServeCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if serveAddr != "" {
		a.cfg.Serve.Addr = serveAddr
	}

	ctx := cmd.Context()
	shutdown, err := telemetry.Init(ctx, a.cfg.Telemetry)
	if err != nil {
		return NewCommandError("serve", ExitUsage, err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	store, err := openHistory(cmd, a)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics, err := storedRunMetrics(ctx, store)
	if err != nil {
		return NewCommandError("serve", ExitUsage, err)
	}

	gin.SetMode(gin.ReleaseMode)
	cfg := server.DefaultConfig()
	cfg.Addr = a.cfg.Serve.Addr
	cfg.ServiceName = a.cfg.Telemetry.ServiceName
	cfg.Logger = a.slog()

	router := server.NewRouter(cfg, store, metrics)
	ux.Info("Serving " + a.cfg.History.Dir + " on " + cfg.Addr)
	if err := server.Serve(ctx, cfg, router); err != nil {
		return NewCommandError("serve", ExitUsage, err)
	}
	return nil
}

// storedRunMetrics replays stored runs, oldest first, into a Prometheus
// sink so the gauges show the newest value per backend. The handler also
// exposes the process registry, which carries the OpenTelemetry
// Prometheus exporter when it is enabled.
func storedRunMetrics(ctx context.Context, store *history.Store) (http.Handler, error) {
	sink, err := telemetry.NewPrometheusSink("")
	if err != nil {
		return nil, err
	}

	runs, err := store.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	for i := len(runs) - 1; i >= 0; i-- {
		if err := sink.RecordRun(runs[i]); err != nil {
			return nil, err
		}
	}

	gatherers := prometheus.Gatherers{sink.Registry(), prometheus.DefaultGatherer}
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}), nil
}
