// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	name string
}

func (s stubBackend) Name() string                  { return s.name }
func (s stubBackend) Kind() Kind                    { return KindInProcess }
func (s stubBackend) Scope() Scope                  { return ScopeFile }
func (s stubBackend) Probe(_ context.Context) error { return nil }
func (s stubBackend) Measure(_ context.Context, _ string) ([]float64, error) {
	return []float64{1}, nil
}

func TestRegistry_Order(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(stubBackend{name: n}))
	}

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, r.Names())
	assert.Equal(t, 3, r.Len())

	selected, err := r.Select([]string{"mid", "zeta"})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "zeta", selected[0].Name())
	assert.Equal(t, "mid", selected[1].Name())

	all, err := r.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubBackend{name: "a"}))

	assert.ErrorIs(t, r.Register(stubBackend{name: "a"}), ErrDuplicateBackend)
	assert.Error(t, r.Register(nil))

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = r.Select([]string{"a", "missing"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	assert.Panics(t, func() { r.MustRegister(stubBackend{name: "a"}) })
}

func TestDefaultRegistry(t *testing.T) {
	r, err := DefaultRegistry(RegistryConfig{
		External: []ExternalConfig{
			{Path: "/opt/bin/decoder", Selector: "custom", Scope: ScopeCorpus},
			{Path: "/opt/bin/decoder", Selector: "library", Scope: ScopeCorpus},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		DecoderStdlib, DecoderSonic, DecoderGoccy, DecoderJsoniter, DecoderJscan, DecoderGoja,
		"decoder:custom", "decoder:library",
	}, r.Names())

	b, err := r.Get("decoder:custom")
	require.NoError(t, err)
	assert.Equal(t, KindExternal, b.Kind())
	assert.Equal(t, ScopeCorpus, b.Scope())

	_, err = DefaultRegistry(RegistryConfig{
		DisableBuiltins: true,
		External: []ExternalConfig{
			{Path: "/bin/x"},
			{Path: "/usr/bin/x"},
		},
	})
	assert.ErrorIs(t, err, ErrDuplicateBackend)
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("file")
	require.NoError(t, err)
	assert.Equal(t, ScopeFile, s)

	s, err = ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeCorpus, s)

	_, err = ParseScope("directory")
	assert.Error(t, err)

	assert.Equal(t, "corpus", ScopeCorpus.String())
	assert.Equal(t, "external", KindExternal.String())
}
