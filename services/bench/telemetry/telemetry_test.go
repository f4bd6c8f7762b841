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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/jsonbench/services/bench/compare"
	"github.com/AleutianAI/jsonbench/services/bench/result"
	"github.com/AleutianAI/jsonbench/services/bench/sampling"
	"github.com/AleutianAI/jsonbench/services/bench/stats"
)

func testRun() *result.Run {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	run := &result.Run{
		ID:         "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Corpus:     result.CorpusInfo{Dir: "corpus", Files: 4, Fingerprint: "abc"},
		Settings:   result.Settings{Mode: "iterations", Iterations: 3},
		Backends: []result.BackendResult{
			{
				Name: "sonic", Kind: "in-process", Scope: "file",
				Stats:   stats.Calculate([]float64{1, 1.5, 2}),
				Summary: sampling.Summary{Trials: 12, Succeeded: 3, Failed: 9},
			},
			{
				Name: "goja", Kind: "in-process", Scope: "file",
				Stats:   stats.Calculate([]float64{4}),
				Summary: sampling.Summary{Trials: 12, Succeeded: 1},
			},
			{Name: "cpp:custom", Kind: "external", Scope: "corpus", Unavailable: "not found"},
		},
	}
	run.Comparison = compare.Compare(run.Entries())
	return run
}

// -----------------------------------------------------------------------------
// Init
// -----------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	cfg := DefaultConfig()
	assert.Equal(t, "jsonbench", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.TraceExporter)
	assert.Equal(t, ExporterNone, cfg.MetricExporter)
}

func TestInit(t *testing.T) {
	t.Run("nil context", func(t *testing.T) {
		//nolint:staticcheck // testing nil context handling
		_, err := Init(nil, DefaultConfig())
		assert.ErrorIs(t, err, ErrNilContext)
	})

	t.Run("none installs nothing", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TraceExporter = ExporterNone
		cfg.MetricExporter = ExporterNone

		shutdown, err := Init(context.Background(), cfg)
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("stdout exporters write to Output", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := DefaultConfig()
		cfg.TraceExporter = ExporterStdout
		cfg.MetricExporter = ExporterNone
		cfg.Output = &buf

		shutdown, err := Init(context.Background(), cfg)
		require.NoError(t, err)

		sink, err := NewSink(DefaultSinkConfig())
		require.NoError(t, err)
		require.NoError(t, sink.RecordRun(context.Background(), testRun()))
		require.NoError(t, shutdown(context.Background()))

		assert.Contains(t, buf.String(), "jsonbench.run")
	})

	t.Run("unknown exporter", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TraceExporter = "zipkin"
		_, err := Init(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrUnknownExporter)
	})
}

// -----------------------------------------------------------------------------
// Sink
// -----------------------------------------------------------------------------

func newTestSink(t *testing.T) (*Sink, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	cfg := DefaultSinkConfig()
	cfg.TracerProvider = tp
	cfg.MeterProvider = mp
	sink, err := NewSink(cfg)
	require.NoError(t, err)
	return sink, recorder, reader
}

func TestSink_RecordRun_Spans(t *testing.T) {
	sink, recorder, _ := newTestSink(t)
	require.NoError(t, sink.RecordRun(context.Background(), testRun()))

	spans := recorder.Ended()
	require.Len(t, spans, 4)

	byBackend := make(map[string]sdktrace.ReadOnlySpan)
	var root sdktrace.ReadOnlySpan
	for _, s := range spans {
		if s.Name() == "jsonbench.run" {
			root = s
			continue
		}
		for _, kv := range s.Attributes() {
			if kv.Key == "backend" {
				byBackend[kv.Value.AsString()] = s
			}
		}
	}

	require.NotNil(t, root)
	assert.Equal(t, 90*time.Second, root.EndTime().Sub(root.StartTime()))
	assert.Equal(t, codes.Error, byBackend["cpp:custom"].Status().Code)
	assert.NotEqual(t, codes.Error, byBackend["sonic"].Status().Code)
	assert.Equal(t, root.SpanContext().SpanID(), byBackend["goja"].Parent().SpanID())
}

func TestSink_RecordRun_Metrics(t *testing.T) {
	sink, _, reader := newTestSink(t)
	require.NoError(t, sink.RecordRun(context.Background(), testRun()))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["jsonbench.backend.latency.mean"])
	assert.True(t, names["jsonbench.backend.latency.stddev"])
	assert.True(t, names["jsonbench.comparison.speedup"])
	assert.True(t, names["jsonbench.backend.unavailable"])
	assert.True(t, names["jsonbench.run.duration"])
}

func TestSink_Errors(t *testing.T) {
	sink, _, _ := newTestSink(t)

	//nolint:staticcheck // testing nil context handling
	assert.ErrorIs(t, sink.RecordRun(nil, testRun()), ErrNilContext)
	assert.ErrorIs(t, sink.RecordRun(context.Background(), nil), ErrNilRun)

	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.RecordRun(context.Background(), testRun()), ErrSinkClosed)

	_, err := NewSink(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// -----------------------------------------------------------------------------
// Prometheus
// -----------------------------------------------------------------------------

func TestPrometheusSink_RecordRun(t *testing.T) {
	sink, err := NewPrometheusSink("")
	require.NoError(t, err)
	require.NoError(t, sink.RecordRun(testRun()))

	assert.Equal(t, 1.5, testutil.ToFloat64(sink.latency.WithLabelValues("sonic", "mean")))
	assert.Equal(t, 4.0, testutil.ToFloat64(sink.latency.WithLabelValues("goja", "mean")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.available.WithLabelValues("cpp:custom")))
	assert.Equal(t, 9.0, testutil.ToFloat64(sink.failed.WithLabelValues("sonic")))
	assert.InDelta(t, 4.0/1.5, testutil.ToFloat64(sink.speedup.WithLabelValues("sonic", "goja")), 1e-9)

	// Single-sample backend has no stddev series
	text := gatherText(t, sink)
	assert.Contains(t, text, `backend="sonic",stat="stddev"`)
	assert.NotContains(t, text, `backend="goja",stat="stddev"`)

	assert.ErrorIs(t, sink.RecordRun(nil), ErrNilRun)
}

func TestPrometheusSink_Handler(t *testing.T) {
	sink, err := NewPrometheusSink("bench")
	require.NoError(t, err)
	require.NoError(t, sink.RecordRun(testRun()))

	rec := httptest.NewRecorder()
	sink.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bench_runs_total 1")
}

func TestPrometheusSink_WriteTextfile(t *testing.T) {
	sink, err := NewPrometheusSink("")
	require.NoError(t, err)
	require.NoError(t, sink.RecordRun(testRun()))

	path := filepath.Join(t.TempDir(), "jsonbench.prom")
	require.NoError(t, sink.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "jsonbench_backend_latency_milliseconds")
}

func gatherText(t *testing.T, sink *PrometheusSink) string {
	t.Helper()
	rec := httptest.NewRecorder()
	sink.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

// -----------------------------------------------------------------------------
// Influx
// -----------------------------------------------------------------------------

type fakeWriter struct {
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(_ context.Context, point ...*write.Point) error {
	f.points = append(f.points, point...)
	return f.err
}

func TestRunPoints(t *testing.T) {
	points := RunPoints(testRun())

	require.Len(t, points, 2)
	assert.Equal(t, MeasurementBackend, points[0].Name())

	fields := make(map[string]interface{})
	for _, f := range points[1].FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Contains(t, fields, "mean_ms")
	assert.NotContains(t, fields, "stddev_ms")
}

func TestInfluxExporter_Export(t *testing.T) {
	fw := &fakeWriter{}
	exp := &InfluxExporter{writer: fw, logger: slog.New(slog.DiscardHandler)}

	require.NoError(t, exp.Export(context.Background(), testRun()))
	assert.Len(t, fw.points, 2)

	fw.err = errors.New("bucket not found")
	assert.ErrorContains(t, exp.Export(context.Background(), testRun()), "bucket not found")
	assert.ErrorIs(t, exp.Export(context.Background(), nil), ErrNilRun)
}

func TestInfluxConfig(t *testing.T) {
	assert.False(t, InfluxConfig{}.Enabled())
	assert.NoError(t, InfluxConfig{}.Validate())
	assert.ErrorIs(t, InfluxConfig{URL: "http://localhost:8086"}.Validate(), ErrInvalidConfig)
	assert.NoError(t, ExportIfEnabled(context.Background(), InfluxConfig{}, testRun(), nil))

	_, err := NewInfluxExporter(InfluxConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
