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
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/jsonbench/cmd/jsonbench/config"
	"github.com/AleutianAI/jsonbench/pkg/logging"
	"github.com/AleutianAI/jsonbench/pkg/ux"
)

// app is the per-invocation state resolved from the config file and the
// persistent flags. It is built by each command and passed down.
type app struct {
	cfg    config.Config
	logger *logging.Logger
}

// loadApp loads the configuration and builds the logger.
func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, NewCommandError(cmd.Name(), ExitUsage, err)
	}

	// The flag and the environment win over the file
	if cfg.Personality != "" && personalityLevel == "" && os.Getenv(ux.EnvPersonality) == "" {
		ux.SetPersonalityLevel(ux.ParsePersonalityLevel(cfg.Personality))
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logJSON {
		cfg.Logging.JSON = true
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, NewCommandError(cmd.Name(), ExitUsage, err)
	}

	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.LogDir,
		Service: "jsonbench",
		JSON:    cfg.Logging.JSON,
	})
	logger.SetDefault()

	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) slog() *slog.Logger {
	return a.logger.Slog()
}

func (a *app) close() {
	if err := a.logger.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
	}
}

func runInitCommand(cmd *cobra.Command, args []string) error {
	path := config.DefaultFileName
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		return NewCommandError("init", ExitUsage, fmt.Errorf("%s already exists", path))
	}
	if err := config.WriteDefault(path); err != nil {
		return NewCommandError("init", ExitUsage, err)
	}
	ux.Success("Wrote " + path)
	return nil
}
