// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"sync"
)

// Store resolves the server's own signing and encryption keys.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetByKid returns the key with the exact key id, or nil if absent.
	GetByKid(ctx context.Context, kid string) (*JSONWebKey, error)

	// GetByAlgorithm returns the first key matching the use and algorithm
	// that supports every requested operation, or nil if none matches.
	GetByAlgorithm(ctx context.Context, use Use, alg string, ops ...Operation) (*JSONWebKey, error)

	// All returns every key in the store.
	All(ctx context.Context) ([]*JSONWebKey, error)
}

// MemoryStore is an in-memory Store. Keys are registered at construction or
// via Add; lookups never touch I/O.
type MemoryStore struct {
	mu   sync.RWMutex
	keys []*JSONWebKey
}

// NewMemoryStore creates a store holding the given keys.
func NewMemoryStore(keys ...*JSONWebKey) *MemoryStore {
	return &MemoryStore{keys: keys}
}

// Add registers an additional key.
func (s *MemoryStore) Add(key *JSONWebKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
}

// GetByKid returns the key with the exact key id, or nil if absent.
func (s *MemoryStore) GetByKid(_ context.Context, kid string) (*JSONWebKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.Kid == kid {
			return k, nil
		}
	}
	return nil, nil
}

// GetByAlgorithm returns the first key for (use, alg) supporting all ops.
func (s *MemoryStore) GetByAlgorithm(_ context.Context, use Use, alg string, ops ...Operation) (*JSONWebKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.Use == use && k.Alg == alg && k.SupportsOperations(ops...) {
			return k, nil
		}
	}
	return nil, nil
}

// All returns a copy of the key list.
func (s *MemoryStore) All(_ context.Context) ([]*JSONWebKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*JSONWebKey, len(s.keys))
	copy(out, s.keys)
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
