// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package metadata

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store is an in-memory Service backed by a map.  Hosting systems that fetch
// metadata out-of-band (conformance test TOCs, vendored statements) load it
// once and hand it to the verifier.  Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[uuid.UUID]*Entry)}
}

// Add registers an entry, replacing any previous entry for the same AAGUID.
func (s *Store) Add(entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.AAGUID] = entry
}

// GetEntry implements Service.
func (s *Store) GetEntry(_ context.Context, aaguid uuid.UUID) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[aaguid], nil
}

// Len returns the number of registered entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
