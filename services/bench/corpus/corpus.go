// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package corpus enumerates the JSON sample files a benchmark runs over.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Extension is the file extension recognized as a corpus member.
const Extension = ".json"

// ErrCorpusUnavailable indicates the corpus directory is missing, unreadable,
// or holds no matching files. No benchmark can run over it.
var ErrCorpusUnavailable = errors.New("corpus unavailable")

// File is one corpus member.
type File struct {
	// Path is the file path, joined from the corpus directory.
	Path string `json:"path"`

	// Name is the base name.
	Name string `json:"name"`

	// Size is the file size in bytes at load time.
	Size int64 `json:"size"`
}

// Corpus is the stable, ordered set of files for one run.
//
// Thread Safety: Immutable after Load; safe for concurrent read access.
type Corpus struct {
	// Dir is the directory the corpus was loaded from.
	Dir string

	// Files are sorted by name.
	Files []File
}

// Load enumerates the corpus files in dir.
//
// Description:
//
//	Lists dir (non-recursively) and keeps regular files whose extension
//	is ".json", compared case-insensitively. Files are sorted by name so
//	the pass order is identical across runs.
//
// Inputs:
//   - dir: Corpus directory.
//
// Outputs:
//   - *Corpus: The loaded corpus with at least one file.
//   - error: Wraps ErrCorpusUnavailable when dir does not exist, cannot
//     be listed, is not a directory, or holds no .json files.
func Load(dir string) (*Corpus, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorpusUnavailable, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCorpusUnavailable, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrCorpusUnavailable, dir, err)
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), Extension) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			// Removed between listing and stat
			continue
		}
		files = append(files, File{
			Path: filepath.Join(dir, entry.Name()),
			Name: entry.Name(),
			Size: fi.Size(),
		})
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no %s files in %s", ErrCorpusUnavailable, Extension, dir)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})

	return &Corpus{Dir: dir, Files: files}, nil
}

// Len returns the number of files.
func (c *Corpus) Len() int {
	return len(c.Files)
}

// Paths returns the file paths in pass order.
func (c *Corpus) Paths() []string {
	paths := make([]string, len(c.Files))
	for i, f := range c.Files {
		paths[i] = f.Path
	}
	return paths
}

// TotalBytes returns the combined size of all files.
func (c *Corpus) TotalBytes() int64 {
	var total int64
	for _, f := range c.Files {
		total += f.Size
	}
	return total
}

// Fingerprint returns a SHA-256 digest over file names and contents.
//
// Description:
//
//	Files are hashed concurrently, then the per-file digests are combined
//	in corpus order, so the result only depends on names and contents.
//	Runs are comparable in history only when their fingerprints match.
//
// Inputs:
//   - ctx: Cancels outstanding reads.
//
// Outputs:
//   - string: Hex-encoded digest.
//   - error: Non-nil if any file cannot be read.
func (c *Corpus) Fingerprint(ctx context.Context) (string, error) {
	digests := make([][]byte, len(c.Files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, f := range c.Files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sum, err := hashFile(f.Path)
			if err != nil {
				return fmt.Errorf("fingerprint %s: %w", f.Name, err)
			}
			digests[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	h := sha256.New()
	for i, f := range c.Files {
		h.Write([]byte(f.Name))
		h.Write([]byte{0})
		h.Write(digests[i])
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
