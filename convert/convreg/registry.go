// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package convreg is the converter registry (§4.C): it maps a
// (xtc.TypeID, version) pair to a converter function and implements the
// xtc.Dispatcher contract the walker calls into.
//
// It mirrors the shape of the teacher's conn/i2c/i2creg and
// conn/spi/spireg bus registries — a name (here, a (type, version) pair)
// maps to a factory-registered implementation, registered once at startup
// and looked up by value thereafter.
package convreg

import (
	"fmt"
	"sync"

	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/xtc"
)

// Converter is a pure function over a node's header, its payload, and the
// event being filled. The event is the only argument a converter may
// mutate. Converters for configuration types write into store instead of
// (or in addition to) the event; converters for data types read store to
// learn how to lay the payload out.
type Converter func(h xtc.Header, payload []byte, ev *event.Event, store *ConfigStore) error

type key struct {
	t xtc.TypeID
	v uint16
}

// Registry is the process-wide converter table plus the configuration
// store its converters share.
type Registry struct {
	mu         sync.RWMutex
	converters map[key]Converter
	store      *ConfigStore
}

// New returns an empty registry with an initialized configuration store.
func New() *Registry {
	return &Registry{
		converters: make(map[key]Converter),
		store:      NewConfigStore(),
	}
}

// Register adds a converter for (t, v). It is an error to register the same
// pair twice.
func (r *Registry) Register(t xtc.TypeID, v uint16, c Converter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{t, v}
	if _, ok := r.converters[k]; ok {
		return fmt.Errorf("shotpipe/convreg: converter already registered for %s v%d", t, v)
	}
	r.converters[k] = c
	return nil
}

// MustRegister calls Register and panics on error. This is the function to
// call from a converter package's RegisterAll, matching the teacher's
// periph.MustRegister — except the registration is explicit, not a
// package-load side effect (see Design Notes §9 on self-registering
// factories).
func (r *Registry) MustRegister(t xtc.TypeID, v uint16, c Converter) {
	if err := r.Register(t, v, c); err != nil {
		panic(err)
	}
}

// Store returns the shared configuration store.
func (r *Registry) Store() *ConfigStore { return r.store }

// Dispatch implements xtc.Dispatcher.
func (r *Registry) Dispatch(h xtc.Header, payload []byte, ev *event.Event) error {
	r.mu.RLock()
	c, ok := r.converters[key{h.TypeID, h.Version}]
	r.mu.RUnlock()
	if !ok {
		return xtc.ErrUnknownConverter
	}
	return c(h, payload, ev, r.store)
}
