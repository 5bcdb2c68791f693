// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package shm

import "fmt"

// Segment is the flat shared-memory region contract (§3.5, §4.D): a fixed
// number of fixed-size byte slots, written by exactly one thread and read
// by out-of-process clients with no in-process lock (§5 "Shared-resource
// policy") — the hand-off is entirely via the queues in queue.go.
type Segment interface {
	WriteSlot(index int, data []byte) error
	SlotSize() int
	Close() error
}

// pageAlignedSize implements the sizing rule common to both the
// real mmap'd segment and the in-memory fake: ⌈(nEv+nTr)·slotSize⌉ rounded
// up to the host page size (§3.5).
func pageAlignedSize(nEv, nTr, slotSize, pageSize int) int {
	raw := (nEv + nTr) * slotSize
	if raw%pageSize == 0 {
		return raw
	}
	return (raw/pageSize + 1) * pageSize
}

// byteSliceSegment is a Segment backed by a plain Go byte slice, used both
// by tests and, through NewMemSegment, by cmd/shotpiped on non-Linux builds
// where a real POSIX shared-memory mapping isn't available.
type byteSliceSegment struct {
	slotSize int
	buf      []byte
	closed   bool
}

// NewMemSegment returns an in-process Segment sized for nEv event slots
// plus nTr transition slots of slotSize bytes each, rounded up to
// pageSize — the same layout the real mmap'd segment uses, for tests that
// don't need an actual /dev/shm mapping.
func NewMemSegment(nEv, nTr, slotSize, pageSize int) Segment {
	size := pageAlignedSize(nEv, nTr, slotSize, pageSize)
	return &byteSliceSegment{slotSize: slotSize, buf: make([]byte, size)}
}

func (s *byteSliceSegment) WriteSlot(index int, data []byte) error {
	if s.closed {
		return fmt.Errorf("shotpipe/shm: write to closed segment")
	}
	off := index * s.slotSize
	if off < 0 || off+len(data) > len(s.buf) || len(data) > s.slotSize {
		return fmt.Errorf("shotpipe/shm: slot %d write of %d bytes out of bounds (slot size %d)", index, len(data), s.slotSize)
	}
	copy(s.buf[off:], data)
	return nil
}

func (s *byteSliceSegment) SlotSize() int { return s.slotSize }

func (s *byteSliceSegment) Close() error {
	s.closed = true
	return nil
}
