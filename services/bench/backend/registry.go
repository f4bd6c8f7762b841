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
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds the backends of a run in registration order.
//
// Description:
//
//	Registration order is the canonical iteration order: backends are
//	sampled, reported and compared in that order, and it breaks ties
//	between equal means. Names are unique.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry struct {
	mu     sync.RWMutex
	order  []Backend
	byName map[string]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Backend),
	}
}

// Register appends b to the registry.
//
// Outputs:
//   - error: ErrDuplicateBackend if the name is taken.
func (r *Registry) Register(b Backend) error {
	if b == nil {
		return errors.New("backend must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := b.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBackend, name)
	}

	r.order = append(r.order, b)
	r.byName[name] = b
	return nil
}

// MustRegister registers b and panics on error. Use during setup only.
func (r *Registry) MustRegister(b Backend) {
	if err := r.Register(b); err != nil {
		panic(fmt.Sprintf("backend: failed to register: %v", err))
	}
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return b, nil
}

// List returns all backends in registration order.
func (r *Registry) List() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Backend, len(r.order))
	copy(out, r.order)
	return out
}

// Names returns all backend names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	for i, b := range r.order {
		names[i] = b.Name()
	}
	return names
}

// Len returns the number of registered backends.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Select returns the named backends in registration order, not in the
// order given. An empty selection returns every backend.
//
// Outputs:
//   - []Backend: The selection.
//   - error: ErrUnknownBackend naming the first unknown entry.
func (r *Registry) Select(names []string) ([]Backend, error) {
	if len(names) == 0 {
		return r.List(), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := r.byName[n]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, n)
		}
		wanted[n] = struct{}{}
	}

	out := make([]Backend, 0, len(wanted))
	for _, b := range r.order {
		if _, ok := wanted[b.Name()]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Default registry
// -----------------------------------------------------------------------------

// RegistryConfig configures DefaultRegistry.
type RegistryConfig struct {
	// DisableBuiltins skips the in-process decoders.
	DisableBuiltins bool

	// External backends, registered after the builtins in the given order.
	External []ExternalConfig

	// Logger is passed to external backends that have none.
	Logger *slog.Logger
}

// DefaultRegistry builds a registry with the built-in decoders followed by
// the configured external backends.
//
// Outputs:
//   - *Registry: The registry.
//   - error: Non-nil if an external backend is misconfigured or two
//     backends share a name.
func DefaultRegistry(cfg RegistryConfig) (*Registry, error) {
	r := NewRegistry()

	if !cfg.DisableBuiltins {
		for _, d := range BuiltinDecoders() {
			if err := r.Register(NewInProcess(d)); err != nil {
				return nil, err
			}
		}
	}

	for _, ec := range cfg.External {
		if ec.Logger == nil {
			ec.Logger = cfg.Logger
		}
		ext, err := NewExternal(ec)
		if err != nil {
			return nil, err
		}
		if err := r.Register(ext); err != nil {
			return nil, err
		}
	}

	return r, nil
}
