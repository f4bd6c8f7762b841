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
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/AleutianAI/jsonbench/pkg/ux"
	"github.com/AleutianAI/jsonbench/services/bench/backend"
)

func runBackendsCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	applyRunFlags(cmd, &a.cfg)
	reg, err := buildRegistry(a)
	if err != nil {
		return err
	}
	return printBackends(cmd.Context(), os.Stdout, reg)
}

// printBackends renders the registry as a tree grouped by kind, probing
// each backend. In machine mode it prints one tab-separated line each.
func printBackends(ctx context.Context, w io.Writer, reg *backend.Registry) error {
	machine := ux.GetPersonality().Level == ux.PersonalityMachine

	tree := treeprint.NewWithRoot(fmt.Sprintf("backends (%d)", reg.Len()))
	branches := map[backend.Kind]treeprint.Tree{}

	for _, b := range reg.List() {
		status := "ok"
		if err := b.Probe(ctx); err != nil {
			status = "unavailable: " + err.Error()
		}

		if machine {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Name(), b.Kind(), b.Scope(), status); err != nil {
				return err
			}
			continue
		}

		branch, ok := branches[b.Kind()]
		if !ok {
			branch = tree.AddBranch(b.Kind().String())
			branches[b.Kind()] = branch
		}
		icon := ux.IconSuccess
		if status != "ok" {
			icon = ux.IconError
		}
		branch.AddNode(fmt.Sprintf("%s %s [%s] %s", icon.Render(), b.Name(), b.Scope(), statusSuffix(status)))
	}

	if machine {
		return nil
	}
	_, err := io.WriteString(w, tree.String())
	return err
}

func statusSuffix(status string) string {
	if status == "ok" {
		return ""
	}
	return ux.Styles.Muted.Render("(" + status + ")")
}
