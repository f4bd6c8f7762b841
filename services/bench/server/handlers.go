// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/jsonbench/services/bench/chart"
	"github.com/AleutianAI/jsonbench/services/bench/history"
	"github.com/AleutianAI/jsonbench/services/bench/result"
)

// RunStore is the read side of the history store.
type RunStore interface {
	List(ctx context.Context, limit int) ([]*result.Run, error)
	Get(ctx context.Context, id string) (*result.Run, error)
}

// listQuery binds the /v1/runs query string.
type listQuery struct {
	Limit int `form:"limit" binding:"min=1,max=1000"`
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListRuns returns stored runs, newest first, without raw samples.
func ListRuns(store RunStore, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := listQuery{Limit: 50}
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit: " + err.Error()})
			return
		}

		runs, err := store.List(c.Request.Context(), q.Limit)
		if err != nil {
			logger.Error("list runs failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
			return
		}
		if runs == nil {
			runs = []*result.Run{}
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
	}
}

// GetRun returns one run with its samples.
func GetRun(store RunStore, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := loadRun(c, store, logger)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

// GetRunChart renders the mean and std-dev bar chart of a run as PNG.
func GetRunChart(store RunStore, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := loadRun(c, store, logger)
		if !ok {
			return
		}

		png, err := chart.RenderPNG(run.Entries())
		if errors.Is(err, chart.ErrNothingToPlot) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "run has no backend with samples"})
			return
		}
		if err != nil {
			logger.Error("render chart failed", "run_id", run.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render chart"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	}
}

// GetRunChartHTML renders the interactive chart page of a run.
func GetRunChartHTML(store RunStore, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := loadRun(c, store, logger)
		if !ok {
			return
		}

		var buf bytes.Buffer
		err := chart.RenderHTML(run.Entries(), &buf)
		if errors.Is(err, chart.ErrNothingToPlot) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "run has no backend with samples"})
			return
		}
		if err != nil {
			logger.Error("render chart failed", "run_id", run.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render chart"})
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
	}
}

// loadRun writes the error response itself and reports false on failure.
func loadRun(c *gin.Context, store RunStore, logger *slog.Logger) (*result.Run, bool) {
	id := c.Param("id")
	run, err := store.Get(c.Request.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found", "id": id})
		return nil, false
	}
	if err != nil {
		logger.Error("get run failed", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return nil, false
	}
	return run, true
}
