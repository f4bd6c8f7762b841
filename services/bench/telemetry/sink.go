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
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/jsonbench/services/bench/result"
	"github.com/AleutianAI/jsonbench/services/bench/stats"
)

const instrumentationName = "github.com/AleutianAI/jsonbench/services/bench/telemetry"

// SinkConfig configures the OpenTelemetry sink.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type SinkConfig struct {
	ServiceVersion string

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider

	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider

	TraceEnabled   bool
	MetricsEnabled bool
}

// DefaultSinkConfig enables traces and metrics on the global providers.
func DefaultSinkConfig() *SinkConfig {
	return &SinkConfig{
		ServiceVersion: "1.0.0",
		TraceEnabled:   true,
		MetricsEnabled: true,
	}
}

// Sink records completed runs through OpenTelemetry.
//
// Description:
//
//	RecordRun creates a "jsonbench.run" span with one child span per
//	backend, timestamped with the run's start and finish, and records
//	per-backend latency gauges and trial counters. Statistics that a
//	backend could not compute are not recorded.
//
// Thread Safety: Safe for concurrent use.
//
// Example:
//
//	sink, err := telemetry.NewSink(telemetry.DefaultSinkConfig())
//	if err != nil {
//	    return fmt.Errorf("create otel sink: %w", err)
//	}
//	defer sink.Close()
//	_ = sink.RecordRun(ctx, run)
type Sink struct {
	config *SinkConfig
	tracer trace.Tracer
	meter  metric.Meter

	latencyMean    metric.Float64Gauge
	latencyMedian  metric.Float64Gauge
	latencyP99     metric.Float64Gauge
	latencyStdDev  metric.Float64Gauge
	samplesTotal   metric.Int64Counter
	trialsTotal    metric.Int64Counter
	trialsFailed   metric.Int64Counter
	speedup        metric.Float64Gauge
	runDuration    metric.Float64Histogram
	runsTotal      metric.Int64Counter
	unavailableTot metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// NewSink creates an OpenTelemetry sink.
//
// Outputs:
//   - *Sink: Never nil on success.
//   - error: ErrInvalidConfig for a nil config, or an instrument error.
func NewSink(config *SinkConfig) (*Sink, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}
	cfg := *config

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	s := &Sink{
		config: &cfg,
		tracer: tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion)),
		meter:  mp.Meter(instrumentationName, metric.WithInstrumentationVersion(cfg.ServiceVersion)),
	}

	if cfg.MetricsEnabled {
		if err := s.initializeMetrics(); err != nil {
			return nil, errors.Join(ErrInvalidConfig, err)
		}
	}
	return s, nil
}

func (s *Sink) initializeMetrics() error {
	var err error

	gauge := func(name, desc string) metric.Float64Gauge {
		if err != nil {
			return nil
		}
		var g metric.Float64Gauge
		g, err = s.meter.Float64Gauge(name, metric.WithDescription(desc), metric.WithUnit("ms"))
		return g
	}
	counter := func(name, desc, unit string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = s.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		return c
	}

	s.latencyMean = gauge("jsonbench.backend.latency.mean", "Mean decode time per trial")
	s.latencyMedian = gauge("jsonbench.backend.latency.median", "Median decode time per trial")
	s.latencyP99 = gauge("jsonbench.backend.latency.p99", "P99 decode time per trial")
	s.latencyStdDev = gauge("jsonbench.backend.latency.stddev", "Sample standard deviation of decode time")
	s.samplesTotal = counter("jsonbench.backend.samples", "Valid timing samples collected", "{sample}")
	s.trialsTotal = counter("jsonbench.backend.trials", "Trials attempted", "{trial}")
	s.trialsFailed = counter("jsonbench.backend.trials.failed", "Trials that failed or timed out", "{trial}")
	s.runsTotal = counter("jsonbench.runs", "Completed benchmark runs", "{run}")
	s.unavailableTot = counter("jsonbench.backend.unavailable", "Backends that failed their probe", "{backend}")
	if err != nil {
		return err
	}

	s.speedup, err = s.meter.Float64Gauge(
		"jsonbench.comparison.speedup",
		metric.WithDescription("mean(b) / mean(a) for each backend pair"),
		metric.WithUnit("{ratio}"),
	)
	if err != nil {
		return err
	}

	s.runDuration, err = s.meter.Float64Histogram(
		"jsonbench.run.duration",
		metric.WithDescription("Wall time of a benchmark run"),
		metric.WithUnit("s"),
	)
	return err
}

// RecordRun records a completed run.
//
// Outputs:
//   - error: ErrNilContext, ErrNilRun or ErrSinkClosed.
//
// Thread Safety: Safe for concurrent use.
func (s *Sink) RecordRun(ctx context.Context, run *result.Run) error {
	if ctx == nil {
		return ErrNilContext
	}
	if run == nil {
		return ErrNilRun
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	runAttrs := []attribute.KeyValue{
		attribute.String("run.id", run.ID),
		attribute.String("corpus.fingerprint", run.Corpus.Fingerprint),
		attribute.Int("corpus.files", run.Corpus.Files),
		attribute.String("sampling.mode", run.Settings.Mode),
	}

	if s.config.TraceEnabled {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "jsonbench.run",
			trace.WithAttributes(runAttrs...),
			trace.WithTimestamp(run.StartedAt),
		)
		if run.Comparison.Fastest != "" {
			span.SetAttributes(attribute.String("comparison.fastest", run.Comparison.Fastest))
		} else {
			span.SetStatus(codes.Error, "no backend produced samples")
		}
		for _, be := range run.Backends {
			s.backendSpan(ctx, run, be)
		}
		span.End(trace.WithTimestamp(run.FinishedAt))
	}

	if s.config.MetricsEnabled {
		s.recordMetrics(ctx, run)
	}
	return nil
}

func (s *Sink) backendSpan(ctx context.Context, run *result.Run, be result.BackendResult) {
	_, span := s.tracer.Start(ctx, "jsonbench.backend",
		trace.WithAttributes(backendAttrs(be)...),
		trace.WithTimestamp(run.StartedAt),
	)
	defer span.End(trace.WithTimestamp(run.FinishedAt))

	span.SetAttributes(
		attribute.Int("samples.count", be.Stats.Count),
		attribute.Int("trials.total", be.Summary.Trials),
		attribute.Int("trials.failed", be.Summary.Failed),
		attribute.Int("trials.timed_out", be.Summary.TimedOut),
		attribute.String("stats.availability", be.Stats.Availability.String()),
	)

	switch {
	case !be.Available():
		span.SetStatus(codes.Error, be.Unavailable)
		return
	case be.Stats.Availability == stats.NoSamples:
		span.SetStatus(codes.Error, "no valid times collected")
		return
	}

	span.SetAttributes(
		attribute.Float64("latency.mean_ms", be.Stats.Mean),
		attribute.Float64("latency.median_ms", be.Stats.Median),
		attribute.Float64("latency.min_ms", be.Stats.Min),
		attribute.Float64("latency.max_ms", be.Stats.Max),
	)
	if sd, err := be.Stats.StdDevValue(); err == nil {
		span.SetAttributes(attribute.Float64("latency.stddev_ms", sd))
	}
}

func (s *Sink) recordMetrics(ctx context.Context, run *result.Run) {
	s.runsTotal.Add(ctx, 1)
	s.runDuration.Record(ctx, run.Elapsed().Seconds())

	for _, be := range run.Backends {
		attrSet := metric.WithAttributes(backendAttrs(be)...)
		if !be.Available() {
			s.unavailableTot.Add(ctx, 1, attrSet)
			continue
		}

		s.trialsTotal.Add(ctx, int64(be.Summary.Trials), attrSet)
		s.trialsFailed.Add(ctx, int64(be.Summary.Failed+be.Summary.TimedOut), attrSet)
		s.samplesTotal.Add(ctx, int64(be.Stats.Count), attrSet)

		if !be.Stats.HasMean() {
			continue
		}
		s.latencyMean.Record(ctx, be.Stats.Mean, attrSet)
		s.latencyMedian.Record(ctx, be.Stats.Median, attrSet)
		s.latencyP99.Record(ctx, be.Stats.P99, attrSet)
		if sd, err := be.Stats.StdDevValue(); err == nil {
			s.latencyStdDev.Record(ctx, sd, attrSet)
		}
	}

	for _, p := range run.Comparison.Pairs {
		s.speedup.Record(ctx, p.Ratio, metric.WithAttributes(
			attribute.String("a", p.A),
			attribute.String("b", p.B),
		))
	}
}

// Close stops further recording. Providers are owned by the caller.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func backendAttrs(be result.BackendResult) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("backend", be.Name),
		attribute.String("backend.kind", be.Kind),
		attribute.String("backend.scope", be.Scope),
	}
}
