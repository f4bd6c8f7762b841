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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/jsonbench/pkg/ux"
)

// --- Global Command Variables ---
var (
	configPath       string
	personalityLevel string // UX personality level (full/standard/minimal/machine)
	logLevel         string
	logJSON          bool

	rootCmd = &cobra.Command{
		Use:   "jsonbench",
		Short: "Benchmark JSON decoders over a corpus of files",
		Long: `jsonbench measures how long each JSON decoder takes to parse every
file in a corpus, aggregates the latencies and compares the decoders.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ux.InitPersonality(personalityLevel)
		},
	}

	// --- Benchmark ---
	runCmd = &cobra.Command{
		Use:   "run [corpus-dir]",
		Short: "Benchmark the selected backends over a corpus",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBenchmarkCommand, // Defined in cmd_run.go
	}

	watchCmd = &cobra.Command{
		Use:   "watch [corpus-dir]",
		Short: "Re-run the benchmark whenever a corpus file changes",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWatchCommand, // Defined in cmd_watch.go
	}

	// --- Backends ---
	backendsCmd = &cobra.Command{
		Use:   "backends",
		Short: "List the registered backends and whether they can run",
		Args:  cobra.NoArgs,
		RunE:  runBackendsCommand, // Defined in cmd_backends.go
	}

	// --- History ---
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List stored benchmark runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList, // Defined in cmd_history.go
	}
	historyShowCmd = &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print the report of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow, // Defined in cmd_history.go
	}
	historyPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryPrune, // Defined in cmd_history.go
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs, charts and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServeCommand, // Defined in cmd_serve.go
	}

	// --- Config ---
	initCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default jsonbench.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInitCommand, // Defined in cmd_config.go
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "path to jsonbench.yaml (default: ./jsonbench.yaml when present)")
	pf.StringVar(&personalityLevel, "personality", "", "output style: full, standard, minimal or machine (env JSONBENCH_PERSONALITY)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVar(&logJSON, "log-json", false, "log as JSON on stderr")

	registerRunFlags(runCmd)
	registerRunFlags(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "minimum time between two runs (default from config, 2s)")

	historyCmd.PersistentFlags().StringVar(&runFlags.historyDir, "history", "", "history directory")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list (0 for all)")
	historyPruneCmd.Flags().IntVar(&pruneKeep, "keep", 100, "number of newest runs to keep")
	historyCmd.AddCommand(historyShowCmd, historyPruneCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	serveCmd.Flags().StringVar(&runFlags.historyDir, "history", "", "history directory")

	backendsCmd.Flags().StringSliceVar(&runFlags.execPaths, "exec", nil, "external decoder executable (repeatable)")
	backendsCmd.Flags().StringSliceVar(&runFlags.execSelectors, "exec-selector", nil, "selector passed to each external executable")
	backendsCmd.Flags().StringVar(&runFlags.execScope, "exec-scope", "corpus", "external target: file or corpus")

	rootCmd.AddCommand(runCmd, watchCmd, backendsCmd, historyCmd, serveCmd, initCmd)
}
