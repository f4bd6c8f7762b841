// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/jsonbench/services/bench/result"
)

// MeasurementBackend is the InfluxDB measurement for per-backend points.
const MeasurementBackend = "jsonbench_backend"

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `yaml:"url" json:"url" validate:"omitempty,url"`
	Token  string `yaml:"token" json:"-"`
	Org    string `yaml:"org" json:"org"`
	Bucket string `yaml:"bucket" json:"bucket"`
}

// Enabled reports whether an export target is configured.
func (c InfluxConfig) Enabled() bool {
	return c.URL != ""
}

// Validate checks the fields needed to write.
func (c InfluxConfig) Validate() error {
	if c.URL == "" {
		return nil
	}
	if c.Org == "" || c.Bucket == "" {
		return fmt.Errorf("%w: influx org and bucket are required", ErrInvalidConfig)
	}
	return nil
}

// pointWriter is the subset of api.WriteAPIBlocking the exporter needs.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxExporter writes one point per available backend per run.
//
// Description:
//
//	Points are tagged with backend, kind, scope and corpus fingerprint and
//	carry count, mean, median, min, max, p99 and, when defined, stddev.
//	Backends without samples write only their count and trial counters.
//
// Thread Safety: Safe for concurrent use if the underlying writer is.
type InfluxExporter struct {
	writer pointWriter
	close  func()
	logger *slog.Logger
}

// NewInfluxExporter connects a blocking write API to the configured bucket.
func NewInfluxExporter(cfg InfluxConfig, logger *slog.Logger) (*InfluxExporter, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: influx url is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxExporter{
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		close:  client.Close,
		logger: logger,
	}, nil
}

// Export writes the run's points.
func (e *InfluxExporter) Export(ctx context.Context, run *result.Run) error {
	if run == nil {
		return ErrNilRun
	}

	points := RunPoints(run)
	if len(points) == 0 {
		return nil
	}
	if err := e.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write influx points: %w", err)
	}
	e.logger.Debug("exported run to influx", "run_id", run.ID, "points", len(points))
	return nil
}

// Close releases the client.
func (e *InfluxExporter) Close() error {
	if e.close != nil {
		e.close()
	}
	return nil
}

// RunPoints converts a run into InfluxDB points, skipping backends that
// never passed their probe.
func RunPoints(run *result.Run) []*write.Point {
	ts := run.FinishedAt
	points := make([]*write.Point, 0, len(run.Backends))

	for _, be := range run.Backends {
		if !be.Available() {
			continue
		}
		tags := map[string]string{
			"backend":     be.Name,
			"kind":        be.Kind,
			"scope":       be.Scope,
			"fingerprint": run.Corpus.Fingerprint,
		}
		fields := map[string]interface{}{
			"count":         be.Stats.Count,
			"trials":        be.Summary.Trials,
			"trials_failed": be.Summary.Failed + be.Summary.TimedOut,
		}
		if be.Stats.HasMean() {
			fields["mean_ms"] = be.Stats.Mean
			fields["median_ms"] = be.Stats.Median
			fields["min_ms"] = be.Stats.Min
			fields["max_ms"] = be.Stats.Max
			fields["p99_ms"] = be.Stats.P99
		}
		if sd, err := be.Stats.StdDevValue(); err == nil {
			fields["stddev_ms"] = sd
		}
		points = append(points, influxdb2.NewPoint(MeasurementBackend, tags, fields, ts))
	}
	return points
}

// ExportIfEnabled exports run when cfg names a target and is a no-op
// otherwise.
func ExportIfEnabled(ctx context.Context, cfg InfluxConfig, run *result.Run, logger *slog.Logger) error {
	if !cfg.Enabled() {
		return nil
	}
	exp, err := NewInfluxExporter(cfg, logger)
	if err != nil {
		return err
	}
	defer exp.Close()
	return exp.Export(ctx, run)
}
