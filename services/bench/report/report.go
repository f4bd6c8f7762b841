// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report renders a benchmark run for humans and machines.
//
// The console report lists every backend with count, mean, median, min,
// max and standard deviation, then the pairwise speedups, then the fastest
// backend. A statistic that could not be computed is printed as a marker,
// never as a number.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/AleutianAI/jsonbench/pkg/ux"
	"github.com/AleutianAI/jsonbench/services/bench/compare"
	"github.com/AleutianAI/jsonbench/services/bench/result"
	"github.com/AleutianAI/jsonbench/services/bench/stats"
)

// Markers printed in place of unavailable statistics.
const (
	MarkerInsufficient = "N/A (insufficient data)"
	MarkerNoSamples    = "N/A (no samples)"
	MarkerUnavailable  = "unavailable"
)

// numberFormat renders milliseconds.
const numberFormat = "%.6f"

// Reporter renders a completed run.
type Reporter interface {
	Report(run *result.Run) error
}

// ConsoleReporter writes the human readable summary.
//
// Description:
//
//	Styling follows the ux personality: full and standard render a
//	lipgloss table and a highlighted fastest banner; minimal renders the
//	same content without color; machine renders key=value lines.
//
// Thread Safety: Not safe for concurrent use on the same writer.
type ConsoleReporter struct {
	out     io.Writer
	verbose bool
	level   ux.PersonalityLevel
}

// NewConsoleReporter creates a console reporter. verbose adds
// percentiles, confidence intervals and sampling counters.
func NewConsoleReporter(out io.Writer, verbose bool) *ConsoleReporter {
	return &ConsoleReporter{
		out:     out,
		verbose: verbose,
		level:   ux.GetPersonality().Level,
	}
}

// WithLevel overrides the personality level captured at construction.
func (r *ConsoleReporter) WithLevel(level ux.PersonalityLevel) *ConsoleReporter {
	r.level = level
	return r
}

// Report implements Reporter.
func (r *ConsoleReporter) Report(run *result.Run) error {
	if run == nil {
		return errors.New("nil run")
	}
	if r.level == ux.PersonalityMachine {
		return r.reportMachine(run)
	}

	var b strings.Builder
	styled := r.level != ux.PersonalityMinimal

	title := "JSON decoder benchmark"
	if styled {
		title = ux.Styles.Title.Render(title)
	}
	fmt.Fprintln(&b, title)
	fmt.Fprintf(&b, "corpus %s: %d files, %s, %s\n\n",
		run.Corpus.Dir, run.Corpus.Files, formatBytes(run.Corpus.Bytes), describeSettings(run.Settings))

	b.WriteString(r.statsTable(run, styled))
	b.WriteString("\n")

	r.writeUnavailable(&b, run, styled)
	r.writeComparison(&b, run.Comparison, styled)

	if len(run.Mismatches) > 0 {
		fmt.Fprintf(&b, "\n%s decoder disagreements:\n", ux.IconWarning.Render())
		for _, m := range run.Mismatches {
			fmt.Fprintf(&b, "  %s %s: %s\n", m.Backend, m.File, m.Reason)
		}
	}

	_, err := io.WriteString(r.out, b.String())
	return err
}

func (r *ConsoleReporter) statsTable(run *result.Run, styled bool) string {
	headers := []string{"Backend", "Samples", "Mean (ms)", "Median (ms)", "Min (ms)", "Max (ms)", "Std Dev (ms)"}
	if r.verbose {
		headers = append(headers, "P95 (ms)", "P99 (ms)", "95% CI (ms)", "Trials", "Failed")
	}

	rows := make([][]string, 0, len(run.Backends))
	for _, be := range run.Backends {
		rows = append(rows, r.statsRow(be))
	}

	t := table.New().
		Headers(headers...).
		Rows(rows...)

	if styled {
		t = t.Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(ux.ColorBorder)).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return ux.Styles.Header
				}
				return ux.Styles.Cell
			})
	} else {
		t = t.Border(lipgloss.NormalBorder())
	}
	return t.String()
}

func (r *ConsoleReporter) statsRow(be result.BackendResult) []string {
	s := be.Stats
	row := []string{be.Name, fmt.Sprintf("%d", s.Count)}

	switch {
	case !be.Available():
		row = append(row, MarkerUnavailable, "", "", "", "")
	case s.Availability == stats.NoSamples:
		row = append(row, MarkerNoSamples, MarkerNoSamples, MarkerNoSamples, MarkerNoSamples, MarkerInsufficient)
	default:
		row = append(row,
			formatMillis(s.Mean),
			formatMillis(s.Median),
			formatMillis(s.Min),
			formatMillis(s.Max),
			formatStdDev(s),
		)
	}

	if r.verbose {
		if s.Availability == stats.NoSamples {
			row = append(row, MarkerNoSamples, MarkerNoSamples, MarkerNoSamples)
		} else {
			ci := MarkerInsufficient
			if s.Availability == stats.Complete {
				ci = fmt.Sprintf("%.4f–%.4f", s.CILow, s.CIHigh)
			}
			row = append(row, formatMillis(s.P95), formatMillis(s.P99), ci)
		}
		row = append(row,
			fmt.Sprintf("%d", be.Summary.Trials),
			fmt.Sprintf("%d", be.Summary.Failed+be.Summary.TimedOut),
		)
	}
	return row
}

func (r *ConsoleReporter) writeUnavailable(b *strings.Builder, run *result.Run, styled bool) {
	for _, be := range run.Backends {
		switch {
		case !be.Available():
			line := fmt.Sprintf("%s %s: %s", ux.IconError, be.Name, be.Unavailable)
			if styled {
				line = ux.Styles.Error.Render(line)
			}
			fmt.Fprintln(b, line)
		case be.Stats.Availability == stats.NoSamples:
			line := fmt.Sprintf("%s %s: no valid times collected", ux.IconWarning, be.Name)
			if be.Summary.LastError != "" {
				line += " (" + be.Summary.LastError + ")"
			}
			if styled {
				line = ux.Styles.Warning.Render(line)
			}
			fmt.Fprintln(b, line)
		}
	}
}

func (r *ConsoleReporter) writeComparison(b *strings.Builder, cmp compare.Result, styled bool) {
	if len(cmp.Pairs) > 0 {
		heading := "Speedup comparisons"
		if styled {
			heading = ux.Styles.Subtitle.Render(heading)
		}
		fmt.Fprintf(b, "\n%s\n", heading)

		for _, p := range cmp.Pairs {
			line := "  " + speedupLine(p, styled)
			if r.verbose && p.Tested {
				sig := "not significant"
				if p.Significant {
					sig = "significant"
				}
				line += fmt.Sprintf("  (p=%.4f, %s, effect %s)", p.PValue, sig, p.EffectCategory)
			}
			fmt.Fprintln(b, line)
		}
	}

	if cmp.Fastest == "" {
		line := "Unable to determine the fastest backend: no backend produced samples."
		if styled {
			line = ux.Styles.Error.Render(line)
		}
		fmt.Fprintf(b, "\n%s\n", line)
		return
	}

	banner := fmt.Sprintf("%s is the fastest!", cmp.Fastest)
	if styled {
		banner = ux.IconFastest.Render() + " " + ux.Styles.Highlight.Render(banner)
	}
	fmt.Fprintf(b, "\n%s\n", banner)
}

// reportMachine writes one key=value line per fact.
func (r *ConsoleReporter) reportMachine(run *result.Run) error {
	var b strings.Builder

	for _, be := range run.Backends {
		s := be.Stats
		fmt.Fprintf(&b, "backend=%s count=%d", be.Name, s.Count)
		switch {
		case !be.Available():
			fmt.Fprintf(&b, " status=unavailable")
		case s.Availability == stats.NoSamples:
			fmt.Fprintf(&b, " status=no_samples")
		default:
			fmt.Fprintf(&b, " mean_ms="+numberFormat+" median_ms="+numberFormat+" min_ms="+numberFormat+" max_ms="+numberFormat,
				s.Mean, s.Median, s.Min, s.Max)
			if sd, err := s.StdDevValue(); err == nil {
				fmt.Fprintf(&b, " stddev_ms="+numberFormat, sd)
			} else {
				fmt.Fprintf(&b, " stddev_ms=NA")
			}
		}
		b.WriteString("\n")
	}

	for _, p := range run.Comparison.Pairs {
		fmt.Fprintf(&b, "speedup a=%s b=%s ratio=%.4f\n", p.A, p.B, p.Ratio)
	}
	if run.Comparison.Fastest != "" {
		fmt.Fprintf(&b, "fastest=%s\n", run.Comparison.Fastest)
	}

	_, err := io.WriteString(r.out, b.String())
	return err
}

// -----------------------------------------------------------------------------
// Formatting helpers
// -----------------------------------------------------------------------------

func formatMillis(v float64) string {
	return fmt.Sprintf(numberFormat, v)
}

func formatStdDev(s stats.Statistics) string {
	sd, err := s.StdDevValue()
	if err != nil {
		return MarkerInsufficient
	}
	return formatMillis(sd)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func describeSettings(s result.Settings) string {
	switch s.Mode {
	case "iterations":
		return fmt.Sprintf("%d passes", s.Iterations)
	case "duration":
		return fmt.Sprintf("%s per backend", s.Duration)
	default:
		return s.Mode
	}
}

// speedupLine states the pair as "A is Nx faster/slower than B". Ratios
// below one are inverted so N is always at least 1.
func speedupLine(p compare.Pair, styled bool) string {
	factor, verb := p.Ratio, "faster"
	if p.Ratio < 1 && p.Ratio > 0 {
		factor, verb = 1/p.Ratio, "slower"
	}
	ratio := fmt.Sprintf("%.2fx", factor)
	if styled {
		ratio = ux.Styles.Highlight.Render(ratio)
	}
	if p.Faster() == "" {
		return fmt.Sprintf("%s and %s are equally fast (%s)", p.A, p.B, ratio)
	}
	return fmt.Sprintf("%s is %s %s than %s", p.A, ratio, verb, p.B)
}
