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
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/jsonbench/pkg/ux"
	"github.com/AleutianAI/jsonbench/services/bench/history"
	"github.com/AleutianAI/jsonbench/services/bench/report"
	"github.com/AleutianAI/jsonbench/services/bench/result"
)

var (
	historyLimit int
	pruneKeep    int
)

// openHistory opens the store named by --history or the config file.
func openHistory(cmd *cobra.Command, a *app) (*history.Store, error) {
	if cmd.Flags().Changed("history") {
		a.cfg.History.Dir = runFlags.historyDir
	}
	hc, ok := a.cfg.StoreConfig(a.slog())
	if !ok {
		return nil, NewCommandError(cmd.Name(), ExitUsage, errors.New("no history directory (--history or history.dir)"))
	}
	store, err := history.Open(hc)
	if err != nil {
		return nil, NewCommandError(cmd.Name(), ExitUsage, err)
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := openHistory(cmd, a)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(cmd.Context(), historyLimit)
	if err != nil {
		return NewCommandError("history", ExitUsage, err)
	}
	if len(runs) == 0 {
		ux.Info("No runs stored yet")
		return nil
	}
	return writeRunTable(os.Stdout, runs)
}

// writeRunTable prints one row per run, newest first.
func writeRunTable(w io.Writer, runs []*result.Run) error {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		fastest := r.Comparison.Fastest
		if fastest == "" {
			fastest = "-"
		}
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Corpus.Dir,
			fmt.Sprintf("%d", len(r.Backends)),
			fastest,
			shortRevision(r.Provenance),
		})
	}
	headers := []string{"ID", "Started", "Corpus", "Backends", "Fastest", "Revision"}

	if ux.GetPersonality().Level == ux.PersonalityMachine {
		for _, row := range rows {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", row[0], row[1], row[2], row[3], row[4], row[5]); err != nil {
				return err
			}
		}
		return nil
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ux.ColorBorder)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return ux.Styles.Header
			}
			return ux.Styles.Cell
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func shortRevision(p result.Provenance) string {
	rev := p.GitRevision
	if len(rev) > 8 {
		rev = rev[:8]
	}
	if rev == "" {
		return "-"
	}
	if p.GitDirty {
		rev += "+dirty"
	}
	return rev
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := openHistory(cmd, a)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return NewCommandError("history show", ExitUsage, err)
	}
	return report.NewConsoleReporter(os.Stdout, true).Report(run)
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := openHistory(cmd, a)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.Prune(cmd.Context(), pruneKeep)
	if err != nil {
		return NewCommandError("history prune", ExitUsage, err)
	}
	ux.Success(fmt.Sprintf("Deleted %d run(s), kept up to %d", deleted, pruneKeep))
	return nil
}
