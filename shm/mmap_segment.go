// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const defaultPageSize = 4096

// MmapSegment is a Segment backed by a real POSIX shared-memory object
// under /dev/shm, opened and mmap'd RW (§4.D "Open shared memory region
// ... map RW").
type MmapSegment struct {
	name     string
	slotSize int
	data     []byte
	owner    bool
}

// OpenMmapSegment creates (if owner) or opens /dev/shm/<name>, sized for
// nEv event slots plus nTr transition slots of slotSize bytes each, page
// aligned, mode 0666, and maps it RW.
func OpenMmapSegment(name string, nEv, nTr, slotSize int, owner bool) (*MmapSegment, error) {
	size := pageAlignedSize(nEv, nTr, slotSize, defaultPageSize)
	path := "/dev/shm/" + name

	flags := os.O_RDWR
	if owner {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o666)
	if err != nil {
		return nil, fmt.Errorf("shotpipe/shm: open %s: %w", path, err)
	}
	defer f.Close()

	if owner {
		if err := unix.Ftruncate(int(f.Fd()), int64(size)); err != nil {
			return nil, fmt.Errorf("shotpipe/shm: ftruncate %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shotpipe/shm: mmap %s: %w", path, err)
	}
	return &MmapSegment{name: name, slotSize: slotSize, data: data, owner: owner}, nil
}

// WriteSlot implements Segment. A write failure here is fatal per §4.D
// ("A write failure on shm is fatal (abort)"); callers that want that
// behavior should treat a non-nil error as unrecoverable.
func (s *MmapSegment) WriteSlot(index int, data []byte) error {
	off := index * s.slotSize
	if off < 0 || off+len(data) > len(s.data) || len(data) > s.slotSize {
		return fmt.Errorf("shotpipe/shm: slot %d write of %d bytes out of bounds (slot size %d)", index, len(data), s.slotSize)
	}
	copy(s.data[off:], data)
	return nil
}

// SlotSize implements Segment.
func (s *MmapSegment) SlotSize() int { return s.slotSize }

// Close unmaps the region and, if this process owns the segment, unlinks
// /dev/shm/<name>.
func (s *MmapSegment) Close() error {
	if err := unix.Munmap(s.data); err != nil {
		return fmt.Errorf("shotpipe/shm: munmap %s: %w", s.name, err)
	}
	if s.owner {
		if err := os.Remove("/dev/shm/" + s.name); err != nil {
			return fmt.Errorf("shotpipe/shm: remove /dev/shm/%s: %w", s.name, err)
		}
	}
	return nil
}
