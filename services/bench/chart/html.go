// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chart

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/AleutianAI/jsonbench/services/bench/compare"
)

// RenderHTML writes an interactive page with a mean/std-dev bar chart and
// a pie of each backend's mean and std-dev share.
//
// Description:
//
//	Uses the same plottable entries as RenderPNG. The page loads the
//	echarts script from its CDN when opened.
//
// Outputs:
//   - error: ErrNothingToPlot when no entry has a mean, or a write error.
func RenderHTML(entries []compare.Entry, w io.Writer) error {
	points := plottable(entries)
	if len(points) == 0 {
		return ErrNothingToPlot
	}

	names := make([]string, len(points))
	means := make([]opts.BarData, len(points))
	stddevs := make([]opts.BarData, len(points))
	for i, pt := range points {
		names[i] = pt.name
		means[i] = opts.BarData{Value: pt.mean}
		stddevs[i] = opts.BarData{Value: pt.stddev}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    DefaultConfig().Title,
			Subtitle: "milliseconds per trial",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
	)
	bar.SetXAxis(names).
		AddSeries("mean", means).
		AddSeries("std dev", stddevs)

	page := components.NewPage()
	page.PageTitle = "jsonbench"
	page.AddCharts(bar)

	for _, pt := range points {
		page.AddCharts(sharePie(pt))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render html chart: %w", err)
	}
	return nil
}

// sharePie shows how large the spread is relative to the mean.
func sharePie(pt point) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: pt.name}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Formatter: "{b}: {c} ms ({d}%)"}),
	)
	pie.AddSeries(pt.name, []opts.PieData{
		{Name: "mean", Value: pt.mean},
		{Name: "std dev", Value: pt.stddev},
	}).SetSeriesOptions(
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {d}%"}),
	)
	return pie
}

// WriteHTML renders entries to the file at path.
func WriteHTML(path string, entries []compare.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart %s: %w", path, err)
	}
	if err := RenderHTML(entries, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
