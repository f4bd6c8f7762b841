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
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/jsonbench/services/bench/result"
)

// PrometheusSink keeps the latest run's statistics as gauges.
//
// Description:
//
//	Each RecordRun replaces the gauge values for the backends it contains.
//	The sink owns a private registry so tests and multiple sinks never
//	collide on the default registerer. Serve it with Handler or write it
//	to a node_exporter textfile with WriteTextfile.
//
// Thread Safety: Safe for concurrent use.
type PrometheusSink struct {
	registry *prometheus.Registry

	latency     *prometheus.GaugeVec
	samples     *prometheus.GaugeVec
	trials      *prometheus.GaugeVec
	failed      *prometheus.GaugeVec
	available   *prometheus.GaugeVec
	speedup     *prometheus.GaugeVec
	runsTotal   prometheus.Counter
	lastRunTime prometheus.Gauge

	mu sync.Mutex
}

// NewPrometheusSink creates a sink with the given metric namespace.
// An empty namespace selects "jsonbench".
func NewPrometheusSink(namespace string) (*PrometheusSink, error) {
	if namespace == "" {
		namespace = "jsonbench"
	}

	s := &PrometheusSink{registry: prometheus.NewRegistry()}

	s.latency = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backend_latency_milliseconds",
		Help:      "Decode time per trial of the latest run, by statistic",
	}, []string{"backend", "stat"})

	s.samples = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backend_samples",
		Help:      "Valid samples collected in the latest run",
	}, []string{"backend"})

	s.trials = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backend_trials",
		Help:      "Trials attempted in the latest run",
	}, []string{"backend"})

	s.failed = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backend_trials_failed",
		Help:      "Trials that failed or timed out in the latest run",
	}, []string{"backend"})

	s.available = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backend_available",
		Help:      "1 when the backend passed its probe in the latest run",
	}, []string{"backend"})

	s.speedup = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "speedup_ratio",
		Help:      "mean(b) / mean(a) in the latest run",
	}, []string{"a", "b"})

	s.runsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Runs recorded by this process",
	})

	s.lastRunTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Finish time of the latest run",
	})

	for _, c := range []prometheus.Collector{
		s.latency, s.samples, s.trials, s.failed, s.available, s.speedup, s.runsTotal, s.lastRunTime,
	} {
		if err := s.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return s, nil
}

// RecordRun replaces the gauges with the values of run.
func (s *PrometheusSink) RecordRun(run *result.Run) error {
	if run == nil {
		return ErrNilRun
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.latency.Reset()
	s.speedup.Reset()

	for _, be := range run.Backends {
		if !be.Available() {
			s.available.WithLabelValues(be.Name).Set(0)
			continue
		}
		s.available.WithLabelValues(be.Name).Set(1)
		s.samples.WithLabelValues(be.Name).Set(float64(be.Stats.Count))
		s.trials.WithLabelValues(be.Name).Set(float64(be.Summary.Trials))
		s.failed.WithLabelValues(be.Name).Set(float64(be.Summary.Failed + be.Summary.TimedOut))

		if !be.Stats.HasMean() {
			continue
		}
		s.latency.WithLabelValues(be.Name, "mean").Set(be.Stats.Mean)
		s.latency.WithLabelValues(be.Name, "median").Set(be.Stats.Median)
		s.latency.WithLabelValues(be.Name, "min").Set(be.Stats.Min)
		s.latency.WithLabelValues(be.Name, "max").Set(be.Stats.Max)
		s.latency.WithLabelValues(be.Name, "p99").Set(be.Stats.P99)
		if sd, err := be.Stats.StdDevValue(); err == nil {
			s.latency.WithLabelValues(be.Name, "stddev").Set(sd)
		}
	}

	for _, p := range run.Comparison.Pairs {
		s.speedup.WithLabelValues(p.A, p.B).Set(p.Ratio)
	}

	s.runsTotal.Inc()
	if !run.FinishedAt.IsZero() {
		s.lastRunTime.Set(float64(run.FinishedAt.Unix()))
	}
	return nil
}

// Registry exposes the sink's gatherer.
func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the sink's metrics in the Prometheus text format.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the metrics to path for the node_exporter textfile
// collector. The write is atomic.
func (s *PrometheusSink) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
