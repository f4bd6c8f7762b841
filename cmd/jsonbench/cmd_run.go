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
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/jsonbench/cmd/jsonbench/config"
	"github.com/AleutianAI/jsonbench/pkg/ux"
	"github.com/AleutianAI/jsonbench/services/bench/backend"
	"github.com/AleutianAI/jsonbench/services/bench/chart"
	"github.com/AleutianAI/jsonbench/services/bench/corpus"
	"github.com/AleutianAI/jsonbench/services/bench/harness"
	"github.com/AleutianAI/jsonbench/services/bench/history"
	"github.com/AleutianAI/jsonbench/services/bench/regression"
	"github.com/AleutianAI/jsonbench/services/bench/report"
	"github.com/AleutianAI/jsonbench/services/bench/result"
	"github.com/AleutianAI/jsonbench/services/bench/sampling"
	"github.com/AleutianAI/jsonbench/services/bench/telemetry"
)

// runFlagValues is the cobra flag storage shared by run and watch.
type runFlagValues struct {
	duration         float64
	iterations       int
	backends         []string
	pick             bool
	execPaths        []string
	execSelectors    []string
	execScope        string
	chartPath        string
	chartHTMLPath    string
	jsonPath         string
	warmup           int
	trialTimeout     time.Duration
	removeOutliers   bool
	verify           bool
	historyDir       string
	failOnRegression bool
	metricsFile      string
	verbose          bool
}

var runFlags runFlagValues

func registerRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64Var(&runFlags.duration, "duration", 90, "time budget per backend in seconds (duration mode)")
	f.IntVar(&runFlags.iterations, "iterations", 0, "run exactly N passes per backend instead of a time budget")
	f.StringSliceVar(&runFlags.backends, "backend", nil, "backend to benchmark (repeatable or comma separated; default all)")
	f.BoolVar(&runFlags.pick, "pick", false, "choose backends interactively")
	f.StringSliceVar(&runFlags.execPaths, "exec", nil, "external decoder executable (repeatable)")
	f.StringSliceVar(&runFlags.execSelectors, "exec-selector", nil, "selector passed to each external executable, one backend per selector")
	f.StringVar(&runFlags.execScope, "exec-scope", "corpus", "external target: file or corpus")
	f.StringVar(&runFlags.chartPath, "chart", "", "write a PNG bar chart of mean and std-dev")
	f.StringVar(&runFlags.chartHTMLPath, "chart-html", "", "write an interactive HTML chart")
	f.StringVar(&runFlags.jsonPath, "json", "", "write the full run as JSON")
	f.IntVar(&runFlags.warmup, "warmup", 0, "discarded passes before measurement")
	f.DurationVar(&runFlags.trialTimeout, "trial-timeout", 0, "kill a trial after this long (0 disables)")
	f.BoolVar(&runFlags.removeOutliers, "remove-outliers", false, "drop IQR outliers before computing statistics")
	f.BoolVar(&runFlags.verify, "verify", false, "check that decoders agree with encoding-json before timing")
	f.StringVar(&runFlags.historyDir, "history", "", "store the run in this history directory")
	f.BoolVar(&runFlags.failOnRegression, "fail-on-regression", false, "exit 4 when a backend regressed against the previous run")
	f.StringVar(&runFlags.metricsFile, "metrics-file", "", "write Prometheus metrics in textfile format")
	f.BoolVarP(&runFlags.verbose, "verbose", "v", false, "show percentiles, confidence intervals and significance")
}

// applyRunFlags overlays explicitly set flags on the file configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("duration") {
		cfg.Sampling.Mode = sampling.ModeDuration.String()
		cfg.Sampling.Duration = time.Duration(runFlags.duration * float64(time.Second))
	}
	if changed("iterations") {
		cfg.Sampling.Mode = sampling.ModeIterations.String()
		cfg.Sampling.Iterations = runFlags.iterations
	}
	if changed("backend") {
		cfg.Backends.Select = runFlags.backends
	}
	for _, path := range runFlags.execPaths {
		cfg.Backends.External = append(cfg.Backends.External, config.ExternalBackend{
			Exec:      path,
			Selectors: runFlags.execSelectors,
			Scope:     runFlags.execScope,
		})
	}
	if changed("warmup") {
		cfg.Sampling.Warmup = runFlags.warmup
	}
	if changed("trial-timeout") {
		cfg.Sampling.TrialTimeout = runFlags.trialTimeout
	}
	if changed("remove-outliers") {
		cfg.Sampling.RemoveOutliers = runFlags.removeOutliers
	}
	if changed("verify") {
		cfg.Sampling.Verify = runFlags.verify
	}
	if changed("chart") {
		cfg.Output.Chart = runFlags.chartPath
	}
	if changed("chart-html") {
		cfg.Output.ChartHTML = runFlags.chartHTMLPath
	}
	if changed("json") {
		cfg.Output.JSON = runFlags.jsonPath
	}
	if changed("metrics-file") {
		cfg.Output.MetricsFile = runFlags.metricsFile
	}
	if changed("verbose") {
		cfg.Output.Verbose = runFlags.verbose
	}
	if changed("history") {
		cfg.History.Dir = runFlags.historyDir
	}
	if changed("fail-on-regression") {
		cfg.Regression.Enabled = runFlags.failOnRegression
	}
}

// resolveCorpus picks the positional argument over the configured corpus.
func resolveCorpus(cmd *cobra.Command, args []string, cfg config.Config) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if cfg.Corpus != "" {
		return cfg.Corpus, nil
	}
	return "", NewCommandError(cmd.Name(), ExitUsage, errors.New("no corpus directory given (argument or corpus: in jsonbench.yaml)"))
}

func runBenchmarkCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	applyRunFlags(cmd, &a.cfg)
	if err := a.cfg.Validate(); err != nil {
		return NewCommandError("run", ExitUsage, err)
	}
	corpusDir, err := resolveCorpus(cmd, args, a.cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	shutdown, err := telemetry.Init(ctx, a.cfg.Telemetry)
	if err != nil {
		return NewCommandError("run", ExitUsage, err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			a.slog().Warn("telemetry shutdown failed", "error", err)
		}
	}()

	backends, err := selectBackends(a, runFlags.pick)
	if err != nil {
		return WrapCommandError(err, "run")
	}

	_, err = benchmarkOnce(ctx, a, corpusDir, backends, os.Stdout)
	return WrapCommandError(err, "run")
}

// buildRegistry assembles the builtin and configured external backends.
func buildRegistry(a *app) (*backend.Registry, error) {
	rc, err := a.cfg.RegistryConfig(a.slog())
	if err != nil {
		return nil, NewCommandError("backends", ExitUsage, err)
	}
	reg, err := backend.DefaultRegistry(rc)
	if err != nil {
		return nil, NewCommandError("backends", ExitUsage, err)
	}
	return reg, nil
}

// selectBackends applies the configured selection, or the interactive
// picker when requested on a terminal.
func selectBackends(a *app, pick bool) ([]backend.Backend, error) {
	reg, err := buildRegistry(a)
	if err != nil {
		return nil, err
	}

	names := a.cfg.Backends.Select
	if pick {
		if !ux.IsInteractive() {
			return nil, NewCommandError("run", ExitUsage, errors.New("--pick needs an interactive terminal"))
		}
		names, err = pickBackends(reg.Names(), names)
		if err != nil {
			return nil, NewCommandError("run", ExitUsage, err)
		}
	}

	selected, err := reg.Select(names)
	if err != nil {
		return nil, NewCommandError("run", ExitUsage, err)
	}
	if len(selected) == 0 {
		return nil, NewCommandError("run", ExitUsage, errors.New("no backends selected"))
	}
	return selected, nil
}

func pickBackends(all, preselected []string) ([]string, error) {
	chosen := append([]string(nil), preselected...)
	if len(chosen) == 0 {
		chosen = append(chosen, all...)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Backends to benchmark").
				Options(huh.NewOptions(all...)...).
				Value(&chosen).
				Validate(func(s []string) error {
					if len(s) == 0 {
						return errors.New("select at least one backend")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("backend picker: %w", err)
	}
	return chosen, nil
}

// benchmarkOnce runs the harness and every configured output.
//
// # Description
//
// Order: run, console report, files (JSON, charts, metrics), telemetry,
// history and the regression gate. Output failures are reported but do
// not hide the benchmark result. The returned error carries the exit
// code: corpus unavailable first, then a regression, then a totally
// unavailable backend.
func benchmarkOnce(ctx context.Context, a *app, corpusDir string, backends []backend.Backend, out io.Writer) (*result.Run, error) {
	logger := a.slog()
	cfg := a.cfg

	h, err := harness.New(harness.Options{
		CorpusDir:        corpusDir,
		Backends:         backends,
		Sampling:         cfg.LoopConfig(logger),
		RemoveOutliers:   cfg.Sampling.RemoveOutliers,
		OutlierThreshold: cfg.Sampling.OutlierThreshold,
		Verify:           cfg.Sampling.Verify,
		ProvenanceDir:    corpusDir,
		Observer:         &spinnerObserver{cfg: cfg},
		Logger:           logger,
	})
	if err != nil {
		return nil, NewCommandError("run", ExitUsage, err)
	}

	run, err := h.Run(ctx)
	if errors.Is(err, corpus.ErrCorpusUnavailable) {
		return nil, NewCommandError("run", ExitCorpusUnavailable, err)
	}
	if run == nil {
		return nil, err
	}
	runErr := err

	if err := report.NewConsoleReporter(out, cfg.Output.Verbose).Report(run); err != nil {
		logger.Error("console report failed", "error", err)
	}

	writeOutputs(ctx, a, run)

	if gateErr := recordHistory(ctx, a, run); gateErr != nil {
		return run, gateErr
	}
	if runErr != nil {
		return run, runErr
	}
	if err := harness.Classify(run); err != nil {
		return run, NewCommandError("run", ExitBackendUnavailable, err)
	}
	return run, nil
}

// writeOutputs writes the optional files and exports. Failures are
// shown and logged, never fatal.
func writeOutputs(ctx context.Context, a *app, run *result.Run) {
	cfg := a.cfg
	logger := a.slog()
	entries := run.Entries()

	warn := func(what string, err error) {
		logger.Error(what+" failed", "error", err)
		ux.Warning(fmt.Sprintf("%s: %v", what, err))
	}

	if path := cfg.Output.JSON; path != "" {
		if err := report.WriteJSONFile(path, run); err != nil {
			warn("write JSON report", err)
		} else {
			ux.Muted("JSON report written to " + path)
		}
	}
	if path := cfg.Output.Chart; path != "" {
		if err := chart.WritePNG(path, entries); err != nil {
			warn("write chart", err)
		} else {
			ux.Muted("Chart written to " + path)
		}
	}
	if path := cfg.Output.ChartHTML; path != "" {
		if err := chart.WriteHTML(path, entries); err != nil {
			warn("write HTML chart", err)
		} else {
			ux.Muted("HTML chart written to " + path)
		}
	}
	if path := cfg.Output.MetricsFile; path != "" {
		if err := writeMetricsFile(path, run); err != nil {
			warn("write metrics file", err)
		}
	}

	sink, err := telemetry.NewSink(telemetry.DefaultSinkConfig())
	if err == nil {
		if err := sink.RecordRun(ctx, run); err != nil {
			logger.Warn("record run telemetry failed", "error", err)
		}
		_ = sink.Close()
	}

	if err := telemetry.ExportIfEnabled(ctx, cfg.Influx, run, logger); err != nil {
		warn("influx export", err)
	}
}

func writeMetricsFile(path string, run *result.Run) error {
	sink, err := telemetry.NewPrometheusSink("")
	if err != nil {
		return err
	}
	if err := sink.RecordRun(run); err != nil {
		return err
	}
	return sink.WriteTextfile(path)
}

// recordHistory saves the run and, when enabled, applies the regression
// gate. Only a failed gate is returned as an error.
func recordHistory(ctx context.Context, a *app, run *result.Run) error {
	hc, ok := a.cfg.StoreConfig(a.slog())
	if !ok {
		return nil
	}
	store, err := history.Open(hc)
	if err != nil {
		a.slog().Error("open history failed", "error", err)
		ux.Warning(fmt.Sprintf("history unavailable: %v", err))
		return nil
	}
	defer store.Close()

	if err := store.Save(ctx, run); err != nil {
		a.slog().Error("save run failed", "run_id", run.ID, "error", err)
		ux.Warning(fmt.Sprintf("run not saved: %v", err))
	}

	if !a.cfg.Regression.Enabled {
		return nil
	}
	gate := regression.NewGate(store, a.cfg.GateOptions(a.slog())...)
	decision, err := gate.Check(ctx, run)
	if err != nil {
		ux.Warning(fmt.Sprintf("regression check skipped: %v", err))
		return nil
	}
	if decision.Pass {
		ux.Success(firstLine(decision.Report))
		return nil
	}
	ux.WarningBox("Regression detected", decision.Report)
	return NewCommandError("run", ExitRegression, decision.Err())
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// -----------------------------------------------------------------------------
// Progress
// -----------------------------------------------------------------------------

// spinnerObserver draws one counting spinner per backend on stderr.
type spinnerObserver struct {
	cfg  config.Config
	spin *ux.ProgressSpinner
}

func (o *spinnerObserver) BackendStarted(name string, trialsPerPass int) {
	if !ux.ShouldShowProgress() {
		return
	}
	total := 0
	if o.cfg.Sampling.Mode == sampling.ModeIterations.String() {
		total = trialsPerPass * o.cfg.Sampling.Iterations
	}
	o.spin = ux.NewProgressSpinner("Benchmarking "+name, total, "trials")
	o.spin.Start()
}

func (o *spinnerObserver) Progress(p sampling.Progress) {
	if o.spin != nil {
		o.spin.SetProgress(p.Trial)
	}
}

func (o *spinnerObserver) BackendFinished(res result.BackendResult) {
	if !res.Available() {
		ux.BackendStatus(res.Name, ux.IconError, "unavailable: "+res.Unavailable)
		return
	}
	if o.spin == nil {
		return
	}
	msg := fmt.Sprintf("%s: %d samples in %s", res.Name, res.Stats.Count, res.Summary.WallTime.Round(time.Millisecond))
	if res.Stats.Count == 0 {
		o.spin.StopWithWarning(fmt.Sprintf("%s: no samples (%d trials failed)", res.Name, res.Summary.Failed))
	} else {
		o.spin.StopWithSuccess(msg)
	}
	o.spin = nil
}

var _ harness.Observer = (*spinnerObserver)(nil)
