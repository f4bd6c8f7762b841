// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chart renders benchmark statistics as images.
//
// Renderers are pure: they read statistics snapshots and write bytes. They
// never run trials and never touch the corpus.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/AleutianAI/jsonbench/services/bench/compare"
)

// ErrNothingToPlot is returned when no entry has a mean.
var ErrNothingToPlot = errors.New("no backend has samples to plot")

// Config sizes the PNG chart.
type Config struct {
	Width  vg.Length
	Height vg.Length
	Title  string
}

// DefaultConfig returns a 10x5 inch chart.
func DefaultConfig() Config {
	return Config{
		Width:  10 * vg.Inch,
		Height: 5 * vg.Inch,
		Title:  "JSON decode latency",
	}
}

var (
	meanColor   = color.RGBA{R: 66, G: 133, B: 244, A: 255}
	stddevColor = color.RGBA{R: 244, G: 180, B: 0, A: 255}
)

// point is one plottable backend.
type point struct {
	name   string
	mean   float64
	stddev float64
}

// plottable keeps entries with a mean, in input order. A backend with a
// single sample plots its mean and a zero-height dispersion bar.
func plottable(entries []compare.Entry) []point {
	points := make([]point, 0, len(entries))
	for _, e := range entries {
		if !e.Stats.HasMean() {
			continue
		}
		p := point{name: e.Name, mean: e.Stats.Mean}
		if sd, err := e.Stats.StdDevValue(); err == nil {
			p.stddev = sd
		}
		points = append(points, p)
	}
	return points
}

// RenderPNG draws grouped bars of mean and standard deviation per backend.
//
// Description:
//
//	Backends without samples are left out. Bars appear in entry order,
//	which is registration order when entries come from a run.
//
// Inputs:
//   - entries: Comparison inputs. Only Name and Stats are read.
//
// Outputs:
//   - []byte: PNG image data.
//   - error: ErrNothingToPlot when no entry has a mean, or a plot error.
//
// Thread Safety: Stateless; safe for concurrent use.
func RenderPNG(entries []compare.Entry) ([]byte, error) {
	return RenderPNGWithConfig(entries, DefaultConfig())
}

// RenderPNGWithConfig is RenderPNG with explicit sizing.
func RenderPNGWithConfig(entries []compare.Entry, cfg Config) ([]byte, error) {
	points := plottable(entries)
	if len(points) == 0 {
		return nil, ErrNothingToPlot
	}

	p := plot.New()
	p.Title.Text = cfg.Title
	p.Y.Label.Text = "Milliseconds"

	means := make(plotter.Values, len(points))
	stddevs := make(plotter.Values, len(points))
	names := make([]string, len(points))
	for i, pt := range points {
		means[i] = pt.mean
		stddevs[i] = pt.stddev
		names[i] = pt.name
	}

	width := vg.Points(20)

	meanBars, err := plotter.NewBarChart(means, width)
	if err != nil {
		return nil, fmt.Errorf("mean bars: %w", err)
	}
	meanBars.Color = meanColor
	meanBars.LineStyle.Width = vg.Length(0)
	meanBars.Offset = -width / 2

	sdBars, err := plotter.NewBarChart(stddevs, width)
	if err != nil {
		return nil, fmt.Errorf("stddev bars: %w", err)
	}
	sdBars.Color = stddevColor
	sdBars.LineStyle.Width = vg.Length(0)
	sdBars.Offset = width / 2

	p.Add(meanBars, sdBars, plotter.NewGrid())
	p.Legend.Add("mean", meanBars)
	p.Legend.Add("std dev", sdBars)
	p.Legend.Top = true
	p.NominalX(names...)

	wt, err := p.WriterTo(cfg.Width, cfg.Height, "png")
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// WritePNG renders entries to the file at path.
func WritePNG(path string, entries []compare.Entry) error {
	data, err := RenderPNG(entries)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write chart %s: %w", path, err)
	}
	return nil
}
