// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package harness

import (
	"log/slog"
	"os"
	"runtime"

	"github.com/go-git/go-git/v5"

	"github.com/AleutianAI/jsonbench/services/bench/result"
)

// CollectProvenance records the runtime and, when dir lies inside a git
// working tree, the checked-out revision.
//
// Description:
//
//	Git lookup failures are logged at Debug and leave the git fields
//	empty; provenance never fails a run. A detached HEAD has no branch.
//
// Inputs:
//   - dir: Directory to search upward from. Empty skips git.
//   - logger: Must not be nil.
func CollectProvenance(dir string, logger *slog.Logger) result.Provenance {
	p := result.Provenance{
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if host, err := os.Hostname(); err == nil {
		p.Hostname = host
	}

	if dir == "" {
		return p
	}

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		logger.Debug("no git provenance", slog.String("dir", dir), slog.String("error", err.Error()))
		return p
	}

	head, err := repo.Head()
	if err != nil {
		// Fresh repository without commits
		logger.Debug("git head unavailable", slog.String("error", err.Error()))
		return p
	}
	p.GitRevision = head.Hash().String()
	if head.Name().IsBranch() {
		p.GitBranch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return p
	}
	status, err := wt.Status()
	if err != nil {
		logger.Debug("git status failed", slog.String("error", err.Error()))
		return p
	}
	p.GitDirty = !status.IsClean()
	return p
}
