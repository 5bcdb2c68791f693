// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package convreg

import (
	"sync"

	"github.com/lcls-lab/shotpipe/xtc"
)

type configKey struct {
	t xtc.TypeID
	p xtc.PhysicalID
}

// ConfigStore is the process-wide, per-instrument configuration store
// (§4.C, §5). It is read-mostly: the write lock is held only for the
// duration of a configure-transition converter's write; data converters
// take the read lock to look a configuration up.
//
// Values are stored as untyped config blobs keyed by the (config TypeID,
// PhysicalID) pair that produced them; each instrument's converter package
// owns the concrete type it stores and asserts it back out, the same way
// context.Value is conventionally used for heterogeneous, package-private
// payloads.
type ConfigStore struct {
	mu     sync.RWMutex
	byKey  map[configKey]interface{}
	cassID map[configKey]int
}

// NewConfigStore returns an empty store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		byKey:  make(map[configKey]interface{}),
		cassID: make(map[configKey]int),
	}
}

// Put publishes cfg for (kind, id), replacing any previous value. Called
// only from a configure-transition converter.
func (s *ConfigStore) Put(kind xtc.TypeID, id xtc.PhysicalID, cfg interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[configKey{kind, id}] = cfg
}

// Get returns the most recently published config for (kind, id).
func (s *ConfigStore) Get(kind xtc.TypeID, id xtc.PhysicalID) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byKey[configKey{kind, id}]
	return v, ok
}

// LoadCassIDTable installs the load-time (type, physical-id) -> dense CASS
// id table that decouples the wire-level taxonomy from downstream processor
// references (§4.C "Key-mapping").
func (s *ConfigStore) LoadCassIDTable(entries map[xtc.TypeID]map[xtc.PhysicalID]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, byPhys := range entries {
		for p, id := range byPhys {
			s.cassID[configKey{t, p}] = id
		}
	}
}

// CassID returns the dense CASS id for (t, p), if the load-time table
// mapped one.
func (s *ConfigStore) CassID(t xtc.TypeID, p xtc.PhysicalID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.cassID[configKey{t, p}]
	return id, ok
}
