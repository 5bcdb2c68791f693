// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ring implements the bounded single-producer/multi-consumer event
// ring buffer (§4.E): a fixed-capacity set of preallocated event slots, a
// free list, a FIFO of accepted slots awaiting processing, and a "latest"
// snapshot slot consumers can peek at without disturbing worker flow. The
// locking discipline follows proc.ResultCache's mutex+condvar pattern
// (proc/cache.go) rather than channels, since slots carry per-reference
// refcounts that a channel handoff can't express directly.
package ring

import (
	"context"
	"errors"
	"sync"

	"github.com/lcls-lab/shotpipe/event"
)

// ErrClosed is returned by NextToFill/NextToProcess once the ring has been
// shut down and, for NextToProcess, fully drained.
var ErrClosed = errors.New("shotpipe/ring: closed")

// Handle is an opaque reference to one ring slot, returned by NextToFill and
// NextToProcess and consumed by DoneFilling/DoneProcessing.
type Handle struct {
	index int
	ring  *Ring
}

// Event exposes the preallocated event backing this handle, for the caller
// to decode into or process.
func (h *Handle) Event() *event.Event { return h.ring.slots[h.index].ev }

type slot struct {
	ev       *event.Event
	refs     int
	accepted bool
}

// Ring is the bounded SPMC event ring buffer. consumerRefs is the number of
// independent consumers (e.g. worker + live-server) each accepted slot must
// be released by before it returns to the free list.
type Ring struct {
	mu   sync.Mutex
	cond *sync.Cond

	slots        []slot
	free         []int
	processQueue []int
	consumerRefs int

	closed  bool
	drained bool

	nextID uint64

	latestIdx   int
	latestValid bool
	latestRefs  int
}

// New constructs a ring of capacity c (typically small, e.g. 8), each slot
// preallocated to hold a datagram up to maxDatagram bytes, releasable by
// consumerRefs independent consumers per accepted event.
func New(c, maxDatagram, consumerRefs int) *Ring {
	r := &Ring{
		slots:        make([]slot, c),
		consumerRefs: consumerRefs,
	}
	r.cond = sync.NewCond(&r.mu)
	for i := 0; i < c; i++ {
		r.slots[i].ev = event.New(maxDatagram)
		r.free = append(r.free, i)
	}
	return r
}

// NextToFill blocks until a slot is free (or the ring closes or ctx is
// done) and returns it for the producer to decode into.
func (r *Ring) NextToFill(ctx context.Context) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.cond.Broadcast()
			r.mu.Unlock()
		case <-done:
		}
	}()

	for len(r.free) == 0 && !r.closed {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.cond.Wait()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if r.closed {
		return nil, ErrClosed
	}
	idx := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]
	return &Handle{index: idx, ring: r}, nil
}

// DoneFilling releases a slot obtained from NextToFill. If accepted, it is
// assigned the next monotonically increasing event id, published as
// "latest", and queued for processing. If not accepted, it is returned
// directly to the free list without ever being visible to a consumer.
func (r *Ring) DoneFilling(h *Handle, accepted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &r.slots[h.index]
	if !accepted {
		r.free = append(r.free, h.index)
		r.cond.Broadcast()
		return
	}
	r.nextID++
	s.ev.SetID(r.nextID)
	s.accepted = true
	s.refs = r.consumerRefs

	r.publishLatestLocked(h.index)

	r.processQueue = append(r.processQueue, h.index)
	r.cond.Broadcast()
}

// publishLatestLocked drops the prior latest reference (returning its slot
// to the free list if nothing else holds it) and installs idx as the new
// latest, holding its own reference independent of consumerRefs — "a
// separate lifetime token so a worker can finish while latest still points
// to the slot".
func (r *Ring) publishLatestLocked(idx int) {
	if r.latestValid {
		prev := &r.slots[r.latestIdx]
		prev.refs--
		if prev.refs == 0 {
			r.returnToFreeLocked(r.latestIdx)
		}
	}
	r.slots[idx].refs++
	r.latestIdx = idx
	r.latestValid = true
}

// NextToProcess blocks until an accepted slot is queued (or the ring closes
// with nothing left to drain, or ctx is done) and returns it to a worker.
func (r *Ring) NextToProcess(ctx context.Context) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.cond.Broadcast()
			r.mu.Unlock()
		case <-done:
		}
	}()

	for len(r.processQueue) == 0 && !r.closed {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.cond.Wait()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(r.processQueue) == 0 {
		r.drained = true
		return nil, ErrClosed
	}
	idx := r.processQueue[0]
	r.processQueue = r.processQueue[1:]
	return &Handle{index: idx, ring: r}, nil
}

// DoneProcessing releases one consumer's reference on an accepted slot. The
// slot returns to the free list once every consumer (including a still-held
// "latest" reference, if any) has released it. When the free list is empty,
// a slot whose only remaining reference is the "latest" token is returned
// as well, and Latest reports nothing until the next accepted event.
func (r *Ring) DoneProcessing(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &r.slots[h.index]
	s.refs--
	if s.refs == 0 {
		r.returnToFreeLocked(h.index)
		return
	}
	if s.refs == 1 && len(r.free) == 0 && r.latestValid && r.latestIdx == h.index {
		s.refs = 0
		r.returnToFreeLocked(h.index)
	}
}

func (r *Ring) returnToFreeLocked(idx int) {
	s := &r.slots[idx]
	s.accepted = false
	if r.latestValid && r.latestIdx == idx {
		r.latestValid = false
	}
	r.free = append(r.free, idx)
	r.cond.Broadcast()
}

// Latest returns a handle on the most recently accepted event without
// disturbing worker flow, or ok=false if nothing has been accepted yet.
// The caller must call ReleaseLatest when done.
func (r *Ring) Latest() (h *Handle, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.latestValid {
		return nil, false
	}
	r.slots[r.latestIdx].refs++
	return &Handle{index: r.latestIdx, ring: r}, true
}

// ReleaseLatest releases a reference obtained from Latest.
func (r *Ring) ReleaseLatest(h *Handle) {
	r.DoneProcessing(h)
}

// Close sets the sticky end-of-stream flag: producers release any slot they
// hold without publishing, and consumers observe closure at their next
// NextToProcess once the process queue drains (§4.E "Cancellation").
func (r *Ring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (r *Ring) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Drained reports whether the ring is closed and NextToProcess has observed
// an empty process queue — the point at which the input loop can stop
// waiting on this ring entirely.
func (r *Ring) Drained() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed && r.drained
}
