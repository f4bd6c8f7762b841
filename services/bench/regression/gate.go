// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package regression compares a run against the previous run over the same
// corpus and decides whether latency regressed.
package regression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/jsonbench/services/bench/history"
	"github.com/AleutianAI/jsonbench/services/bench/result"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// ErrGateFailed indicates the regression gate did not pass.
var ErrGateFailed = errors.New("regression gate failed")

// -----------------------------------------------------------------------------
// Findings
// -----------------------------------------------------------------------------

// Metric names a compared statistic.
type Metric string

const (
	MetricMean Metric = "mean"
	MetricP99  Metric = "p99"
)

// Severity indicates how severe a finding is.
type Severity int

const (
	// SeverityWarning is reported but does not fail the gate unless
	// FailOnWarnings is set.
	SeverityWarning Severity = iota + 1

	// SeverityError fails the gate.
	SeverityError
)

// String returns the string representation.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Finding describes one backend metric that moved.
type Finding struct {
	Backend  string   `json:"backend"`
	Metric   Metric   `json:"metric,omitempty"`
	Severity Severity `json:"severity"`

	// Baseline and Current are in milliseconds.
	Baseline float64 `json:"baseline_ms,omitempty"`
	Current  float64 `json:"current_ms,omitempty"`

	// Change is the relative increase; positive means slower.
	Change    float64 `json:"change"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures the gate.
type Config struct {
	// MeanThreshold is the allowed relative mean increase (0.10 = 10%).
	MeanThreshold float64

	// P99Threshold is the allowed relative P99 increase.
	P99Threshold float64

	// WarnThresholdRatio warns once a change passes this share of the
	// threshold.
	WarnThresholdRatio float64

	// MinSamples below which a backend gets a warning.
	MinSamples int

	// AllowedRegressions is the number of error findings tolerated.
	AllowedRegressions int

	// FailOnWarnings turns warnings into failures.
	FailOnWarnings bool

	Logger *slog.Logger
}

// DefaultConfig returns the default thresholds: mean +10%, P99 +20%.
func DefaultConfig() *Config {
	return &Config{
		MeanThreshold:      0.10,
		P99Threshold:       0.20,
		WarnThresholdRatio: 0.80,
		MinSamples:         2,
		Logger:             slog.Default(),
	}
}

// Option configures the gate.
type Option func(*Config)

// WithMeanThreshold sets the allowed mean increase.
func WithMeanThreshold(threshold float64) Option {
	return func(c *Config) {
		if threshold > 0 {
			c.MeanThreshold = threshold
		}
	}
}

// WithP99Threshold sets the allowed P99 increase.
func WithP99Threshold(threshold float64) Option {
	return func(c *Config) {
		if threshold > 0 {
			c.P99Threshold = threshold
		}
	}
}

// WithAllowedRegressions sets the tolerated error count.
func WithAllowedRegressions(count int) Option {
	return func(c *Config) {
		if count >= 0 {
			c.AllowedRegressions = count
		}
	}
}

// WithFailOnWarnings enables failing on warnings.
func WithFailOnWarnings(fail bool) Option {
	return func(c *Config) {
		c.FailOnWarnings = fail
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// -----------------------------------------------------------------------------
// Gate
// -----------------------------------------------------------------------------

// Baselines finds the run to compare against.
type Baselines interface {
	Latest(ctx context.Context, fingerprint, exclude string) (*result.Run, error)
}

// Decision is the gate outcome.
type Decision struct {
	Pass bool `json:"pass"`

	// BaselineID is the compared run, empty on a first run.
	BaselineID string `json:"baseline_id,omitempty"`

	Regressions []Finding `json:"regressions,omitempty"`
	Warnings    []Finding `json:"warnings,omitempty"`

	// Report is a human readable summary.
	Report string `json:"report"`
}

// Err returns ErrGateFailed wrapped with the summary when the gate failed.
func (d *Decision) Err() error {
	if d == nil || d.Pass {
		return nil
	}
	return fmt.Errorf("%w: %d regression(s)", ErrGateFailed, len(d.Regressions))
}

// Gate checks runs for latency regressions.
//
// Thread Safety: Safe for concurrent use.
type Gate struct {
	baselines Baselines
	config    *Config
	logger    *slog.Logger
}

// NewGate creates a gate reading baselines from store.
func NewGate(store Baselines, opts ...Option) *Gate {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Gate{baselines: store, config: cfg, logger: cfg.Logger}
}

// Check compares current with the newest earlier run over the same corpus.
//
// Description:
//
//	A run with no baseline passes as a first run. current itself is
//	excluded from the lookup, so Check may be called before or after the
//	run is saved.
//
// Outputs:
//   - *Decision: Never nil when error is nil.
//   - error: Non-nil only when the baseline lookup itself failed.
func (g *Gate) Check(ctx context.Context, current *result.Run) (*Decision, error) {
	if current == nil {
		return nil, errors.New("current run must not be nil")
	}

	ctx, span := otel.Tracer("regression").Start(ctx, "regression.Gate.Check",
		trace.WithAttributes(attribute.String("corpus.fingerprint", current.Corpus.Fingerprint)),
	)
	defer span.End()

	baseline, err := g.baselines.Latest(ctx, current.Corpus.Fingerprint, current.ID)
	if errors.Is(err, history.ErrNotFound) {
		d := &Decision{Pass: true, Report: "No baseline found - first run over this corpus"}
		g.logger.Info("regression gate: no baseline", "fingerprint", current.Corpus.Fingerprint)
		return d, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load baseline: %w", err)
	}

	d := g.Compare(baseline, current)

	span.SetAttributes(
		attribute.Bool("pass", d.Pass),
		attribute.String("baseline.id", d.BaselineID),
		attribute.Int("regressions", len(d.Regressions)),
		attribute.Int("warnings", len(d.Warnings)),
	)
	if !d.Pass {
		span.SetStatus(codes.Error, "regression detected")
	}

	g.logger.Info("regression gate check completed",
		slog.String("baseline", d.BaselineID),
		slog.Bool("pass", d.Pass),
		slog.Int("regressions", len(d.Regressions)),
		slog.Int("warnings", len(d.Warnings)),
	)
	return d, nil
}

// Compare evaluates current against baseline. Pure apart from config.
func (g *Gate) Compare(baseline, current *result.Run) *Decision {
	d := &Decision{BaselineID: baseline.ID}

	for _, cur := range current.Backends {
		prev, ok := baseline.Backend(cur.Name)
		if !ok || !prev.Stats.HasMean() {
			continue
		}
		if !cur.Stats.HasMean() {
			d.Warnings = append(d.Warnings, Finding{
				Backend:  cur.Name,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("%s produced no samples; baseline had %d", cur.Name, prev.Stats.Count),
			})
			continue
		}
		if cur.Stats.Count < g.config.MinSamples {
			d.Warnings = append(d.Warnings, Finding{
				Backend:  cur.Name,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("%s: insufficient samples: %d < %d", cur.Name, cur.Stats.Count, g.config.MinSamples),
			})
		}

		g.check(d, cur.Name, MetricMean, prev.Stats.Mean, cur.Stats.Mean, g.config.MeanThreshold)
		g.check(d, cur.Name, MetricP99, prev.Stats.P99, cur.Stats.P99, g.config.P99Threshold)
	}

	switch {
	case len(d.Regressions) > g.config.AllowedRegressions:
		d.Pass = false
	case g.config.FailOnWarnings && len(d.Warnings) > 0:
		d.Pass = false
	default:
		d.Pass = true
	}

	d.Report = renderReport(d)
	return d
}

func (g *Gate) check(d *Decision, name string, metric Metric, baseline, current, threshold float64) {
	if baseline <= 0 {
		return
	}
	change := (current - baseline) / baseline

	f := Finding{
		Backend:   name,
		Metric:    metric,
		Baseline:  baseline,
		Current:   current,
		Change:    change,
		Threshold: threshold,
	}

	switch {
	case change > threshold:
		f.Severity = SeverityError
		f.Message = fmt.Sprintf("%s %s increased by %.1f%% (threshold: %.1f%%)",
			name, metric, change*100, threshold*100)
		d.Regressions = append(d.Regressions, f)
	case change > threshold*g.config.WarnThresholdRatio:
		f.Severity = SeverityWarning
		f.Message = fmt.Sprintf("%s %s increased by %.1f%% (approaching threshold: %.1f%%)",
			name, metric, change*100, threshold*100)
		d.Warnings = append(d.Warnings, f)
	}
}

func renderReport(d *Decision) string {
	var sb strings.Builder
	if d.Pass {
		fmt.Fprintf(&sb, "Regression gate: PASS (baseline %s)\n", d.BaselineID)
	} else {
		fmt.Fprintf(&sb, "Regression gate: FAIL (baseline %s)\n", d.BaselineID)
	}
	for _, f := range d.Regressions {
		fmt.Fprintf(&sb, "  regression: %s (%.6f -> %.6f ms)\n", f.Message, f.Baseline, f.Current)
	}
	for _, f := range d.Warnings {
		fmt.Fprintf(&sb, "  warning: %s\n", f.Message)
	}
	return sb.String()
}
