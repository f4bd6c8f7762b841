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
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/jsonbench/pkg/ux"
	"github.com/AleutianAI/jsonbench/services/bench/corpus"
	"github.com/AleutianAI/jsonbench/services/bench/telemetry"
)

var watchDebounce time.Duration

func runWatchCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	applyRunFlags(cmd, &a.cfg)
	if watchDebounce > 0 {
		a.cfg.Watch.Debounce = watchDebounce
	}
	if err := a.cfg.Validate(); err != nil {
		return NewCommandError("watch", ExitUsage, err)
	}
	corpusDir, err := resolveCorpus(cmd, args, a.cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	shutdown, err := telemetry.Init(ctx, a.cfg.Telemetry)
	if err != nil {
		return NewCommandError("watch", ExitUsage, err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	backends, err := selectBackends(a, runFlags.pick)
	if err != nil {
		return WrapCommandError(err, "watch")
	}

	trigger := func() error {
		_, err := benchmarkOnce(ctx, a, corpusDir, backends, os.Stdout)
		if errors.Is(err, corpus.ErrCorpusUnavailable) {
			return err
		}
		if err != nil && ctx.Err() == nil {
			// Regressions and unavailable backends are shown; keep watching
			ux.Warning(err.Error())
		}
		return nil
	}

	return WrapCommandError(watchCorpus(ctx, corpusDir, a.cfg.Watch.Debounce, a.slog(), trigger), "watch")
}

// watchCorpus runs trigger once, then again after .json files in dir
// change, at most once per debounce interval. A burst of events within
// one window produces a single run. Events queued while trigger runs are
// discarded so outputs written into dir do not retrigger it.
func watchCorpus(ctx context.Context, dir string, debounce time.Duration, logger *slog.Logger, trigger func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("%w: watch %s: %v", corpus.ErrCorpusUnavailable, dir, err)
	}

	if err := trigger(); err != nil {
		return err
	}

	limiter := rate.NewLimiter(rate.Every(debounce), 1)
	// The initial run spends the first token
	limiter.Allow()

	pending := false
	timer := time.NewTimer(debounce)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			logger.Debug("corpus changed", slog.String("file", ev.Name), slog.String("op", ev.Op.String()))
			if pending {
				continue
			}
			// One reservation per window; later events ride on it
			pending = true
			timer.Reset(limiter.Reserve().Delay())

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", slog.String("error", err.Error()))

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			ux.Info("Corpus changed, re-running benchmark")
			if err := trigger(); err != nil {
				return err
			}
			drain(watcher.Events)
		}
	}
}

// relevant reports whether ev touches a corpus file.
func relevant(ev fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(ev.Name), corpus.Extension) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

// drain discards events queued while a run was writing its own outputs.
func drain(events <-chan fsnotify.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
