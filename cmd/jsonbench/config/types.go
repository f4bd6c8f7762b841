// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the jsonbench configuration file schema.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/jsonbench/services/bench/backend"
	"github.com/AleutianAI/jsonbench/services/bench/history"
	"github.com/AleutianAI/jsonbench/services/bench/regression"
	"github.com/AleutianAI/jsonbench/services/bench/sampling"
	"github.com/AleutianAI/jsonbench/services/bench/telemetry"
	"github.com/AleutianAI/jsonbench/services/bench/trial"
)

// Config is the top level of jsonbench.yaml.
type Config struct {
	// Corpus is the default corpus directory.
	Corpus string `yaml:"corpus"`

	Sampling   SamplingConfig         `yaml:"sampling"`
	Backends   BackendsConfig         `yaml:"backends"`
	Output     OutputConfig           `yaml:"output"`
	History    HistoryConfig          `yaml:"history"`
	Regression RegressionConfig       `yaml:"regression"`
	Telemetry  telemetry.Config       `yaml:"telemetry"`
	Influx     telemetry.InfluxConfig `yaml:"influx"`
	Logging    LoggingConfig          `yaml:"logging"`
	Serve      ServeConfig            `yaml:"serve"`
	Watch      WatchConfig            `yaml:"watch"`

	// Personality is the terminal UX level. Empty detects from the
	// environment.
	Personality string `yaml:"personality" validate:"omitempty,oneof=full standard minimal machine"`
}

type SamplingConfig struct {
	// Mode is "duration" or "iterations".
	Mode       string        `yaml:"mode" validate:"oneof=duration iterations"`
	Iterations int           `yaml:"iterations" validate:"gte=0"`
	Duration   time.Duration `yaml:"duration" validate:"gte=0"`
	Warmup     int           `yaml:"warmup" validate:"gte=0"`

	// TrialTimeout of zero leaves trials unbounded.
	TrialTimeout time.Duration `yaml:"trial_timeout" validate:"gte=0"`

	RemoveOutliers   bool    `yaml:"remove_outliers"`
	OutlierThreshold float64 `yaml:"outlier_threshold" validate:"gte=0"`

	Verify bool `yaml:"verify"`
}

type ExternalBackend struct {
	Name string `yaml:"name,omitempty"`
	Exec string `yaml:"exec" validate:"required"`

	// Selectors register one backend per entry. Empty registers one
	// backend invoked without a selector.
	Selectors []string `yaml:"selectors,omitempty"`

	Scope string   `yaml:"scope,omitempty" validate:"omitempty,oneof=file corpus"`
	Env   []string `yaml:"env,omitempty"`
}

type BackendsConfig struct {
	// Select restricts the run to these names. Empty runs all.
	Select          []string          `yaml:"select,omitempty"`
	DisableBuiltins bool              `yaml:"disable_builtins"`
	External        []ExternalBackend `yaml:"external,omitempty" validate:"dive"`
}

type OutputConfig struct {
	Chart       string `yaml:"chart,omitempty"`
	ChartHTML   string `yaml:"chart_html,omitempty"`
	JSON        string `yaml:"json,omitempty"`
	MetricsFile string `yaml:"metrics_file,omitempty"`
	Verbose     bool   `yaml:"verbose"`
}

type HistoryConfig struct {
	// Dir enables the run history. Empty disables it.
	Dir     string `yaml:"dir,omitempty"`
	MaxRuns int    `yaml:"max_runs" validate:"gte=0"`
}

type RegressionConfig struct {
	Enabled            bool    `yaml:"enabled"`
	MeanThreshold      float64 `yaml:"mean_threshold" validate:"gte=0"`
	P99Threshold       float64 `yaml:"p99_threshold" validate:"gte=0"`
	AllowedRegressions int     `yaml:"allowed_regressions" validate:"gte=0"`
	FailOnWarnings     bool    `yaml:"fail_on_warnings"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON   bool   `yaml:"json"`
	LogDir string `yaml:"log_dir,omitempty"`
}

type ServeConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

type WatchConfig struct {
	// Debounce is the minimum time between two triggered runs.
	Debounce time.Duration `yaml:"debounce" validate:"gt=0"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Sampling: SamplingConfig{
			Mode:             sampling.ModeDuration.String(),
			Iterations:       1,
			Duration:         sampling.DefaultDuration,
			OutlierThreshold: 1.5,
		},
		History: HistoryConfig{MaxRuns: 1000},
		Regression: RegressionConfig{
			MeanThreshold: 0.10,
			P99Threshold:  0.20,
		},
		Telemetry: telemetry.DefaultConfig(),
		Logging:   LoggingConfig{Level: "warn"},
		Serve:     ServeConfig{Addr: ":8080"},
		Watch:     WatchConfig{Debounce: 2 * time.Second},
	}
}

// -----------------------------------------------------------------------------
// Conversions
// -----------------------------------------------------------------------------

// LoopConfig converts to the sampling loop configuration.
func (c Config) LoopConfig(logger *slog.Logger) *sampling.Config {
	sc := sampling.DefaultConfig()
	if c.Sampling.Mode == sampling.ModeIterations.String() {
		sc.Mode = sampling.ModeIterations
	}
	sc.Iterations = c.Sampling.Iterations
	sc.Duration = c.Sampling.Duration
	sc.WarmupPasses = c.Sampling.Warmup
	sc.Trial = trial.Config{Timeout: c.Sampling.TrialTimeout, Logger: logger}
	sc.Logger = logger
	return sc
}

// RegistryConfig converts the backends section. Each selector of an
// external entry becomes its own backend; an empty scope means corpus.
func (c Config) RegistryConfig(logger *slog.Logger) (backend.RegistryConfig, error) {
	rc := backend.RegistryConfig{
		DisableBuiltins: c.Backends.DisableBuiltins,
		Logger:          logger,
	}
	for _, ext := range c.Backends.External {
		scope, err := backend.ParseScope(ext.Scope)
		if err != nil {
			return rc, fmt.Errorf("external backend %s: %w", ext.Exec, err)
		}

		selectors := ext.Selectors
		if len(selectors) == 0 {
			selectors = []string{""}
		}
		for _, sel := range selectors {
			name := ""
			if ext.Name != "" {
				name = ext.Name
				if sel != "" && len(selectors) > 1 {
					name = ext.Name + ":" + sel
				}
			}
			rc.External = append(rc.External, backend.ExternalConfig{
				Name:     name,
				Path:     ext.Exec,
				Selector: sel,
				Scope:    scope,
				Env:      ext.Env,
				Logger:   logger,
			})
		}
	}
	return rc, nil
}

// StoreConfig converts to the store configuration. ok is false when
// history is disabled.
func (c Config) StoreConfig(logger *slog.Logger) (cfg history.Config, ok bool) {
	if c.History.Dir == "" {
		return history.Config{}, false
	}
	cfg = history.DefaultConfig(c.History.Dir)
	cfg.MaxRuns = c.History.MaxRuns
	cfg.Logger = logger
	return cfg, true
}

// GateOptions converts the regression section.
func (c Config) GateOptions(logger *slog.Logger) []regression.Option {
	return []regression.Option{
		regression.WithMeanThreshold(c.Regression.MeanThreshold),
		regression.WithP99Threshold(c.Regression.P99Threshold),
		regression.WithAllowedRegressions(c.Regression.AllowedRegressions),
		regression.WithFailOnWarnings(c.Regression.FailOnWarnings),
		regression.WithLogger(logger),
	}
}
