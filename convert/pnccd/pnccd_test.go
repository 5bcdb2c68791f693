// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pnccd

import (
	"encoding/binary"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/lcls-lab/shotpipe/convert/convreg"
	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/xtc"
)

const testSeg = 2 // 2x2 segments, tiny but exercises every orientation branch

func encodeSegments(fill [4]uint16) []byte {
	buf := make([]byte, 4*testSeg*testSeg*2)
	off := 0
	for s := 0; s < 4; s++ {
		for i := 0; i < testSeg*testSeg; i++ {
			binary.LittleEndian.PutUint16(buf[off:], fill[s])
			off += 2
		}
	}
	return buf
}

func TestConvertFrameQuadrantPlacement(t *testing.T) {
	store := convreg.NewConfigStore()
	phys := xtc.PhysicalID{Detector: 3}
	store.Put(xtc.TypePNCCDConfig, phys, Config{SegmentRows: testSeg, SegmentColumns: testSeg})

	// Segment values chosen distinct so placement is unambiguous: seg0=1
	// (top-left), seg3=2 (top-right), seg1=3 (bottom-left, reversed),
	// seg2=4 (bottom-right, reversed).
	payload := encodeSegments([4]uint16{1, 3, 4, 2})

	ev := event.New(4096)
	h := xtc.Header{TypeID: xtc.TypePNCCDFrame, Version: 1, PhysicalID: phys}
	if err := convertFrame(h, payload, ev, store, testLog()); err != nil {
		t.Fatalf("convertFrame: %v", err)
	}

	dev, err := ev.Device(event.PixelDetectorSet)
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	cam := dev.(*event.CameraDevice)
	det := cam.Detectors[0]
	if det.Columns != 2*testSeg || det.Rows != 2*testSeg {
		t.Fatalf("got %dx%d, want %dx%d", det.Columns, det.Rows, 2*testSeg, 2*testSeg)
	}
	at := func(r, c int) uint32 { return det.Frame[r*det.Columns+c] }
	if v := at(0, 0); v != 1 {
		t.Errorf("top-left = %d, want 1 (segment 0)", v)
	}
	if v := at(0, testSeg); v != 2 {
		t.Errorf("top-right = %d, want 2 (segment 3)", v)
	}
	if v := at(testSeg, 0); v != 3 {
		t.Errorf("bottom-left = %d, want 3 (segment 1)", v)
	}
	if v := at(testSeg, testSeg); v != 4 {
		t.Errorf("bottom-right = %d, want 4 (segment 2)", v)
	}
}

func TestConvertFramePixelMaskStripsStatusBits(t *testing.T) {
	store := convreg.NewConfigStore()
	phys := xtc.PhysicalID{Detector: 4}
	store.Put(xtc.TypePNCCDConfig, phys, Config{SegmentRows: testSeg, SegmentColumns: testSeg})
	payload := encodeSegments([4]uint16{0xC123, 0xC123, 0xC123, 0xC123})

	ev := event.New(4096)
	h := xtc.Header{TypeID: xtc.TypePNCCDFrame, Version: 1, PhysicalID: phys}
	if err := convertFrame(h, payload, ev, store, testLog()); err != nil {
		t.Fatalf("convertFrame: %v", err)
	}
	dev, _ := ev.Device(event.PixelDetectorSet)
	cam := dev.(*event.CameraDevice)
	for _, p := range cam.Detectors[0].Frame {
		if p != 0x0123 {
			t.Errorf("pixel = 0x%x, want 0x0123 (status bits stripped)", p)
		}
	}
}

func TestConvertFrameWithoutConfigErrors(t *testing.T) {
	store := convreg.NewConfigStore()
	ev := event.New(4096)
	h := xtc.Header{TypeID: xtc.TypePNCCDFrame, Version: 1}
	if err := convertFrame(h, encodeSegments([4]uint16{}), ev, store, testLog()); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestConvertConfigV1AppliesDefaultSegmentSize(t *testing.T) {
	store := convreg.NewConfigStore()
	phys := xtc.PhysicalID{Detector: 5}
	h := xtc.Header{TypeID: xtc.TypePNCCDConfig, Version: 1, PhysicalID: phys}
	if err := convertConfigV1(h, nil, event.New(0), store); err != nil {
		t.Fatalf("convertConfigV1: %v", err)
	}
	raw, ok := store.Get(xtc.TypePNCCDConfig, phys)
	if !ok {
		t.Fatalf("expected a stored config")
	}
	cfg := raw.(Config)
	if cfg.SegmentRows != DefaultSegmentSize || cfg.SegmentColumns != DefaultSegmentSize {
		t.Fatalf("got %dx%d segment size, want %dx%d", cfg.SegmentRows, cfg.SegmentColumns, DefaultSegmentSize, DefaultSegmentSize)
	}
}

func TestConvertFrameFallsBackOnOutOfRangeSegmentSize(t *testing.T) {
	store := convreg.NewConfigStore()
	phys := xtc.PhysicalID{Detector: 6}
	store.Put(xtc.TypePNCCDConfig, phys, Config{SegmentRows: DefaultSegmentSize * 2, SegmentColumns: DefaultSegmentSize * 2})

	fill := [4]uint16{1, 3, 4, 2}
	buf := make([]byte, 4*DefaultSegmentSize*DefaultSegmentSize*2)
	off := 0
	for s := 0; s < 4; s++ {
		for i := 0; i < DefaultSegmentSize*DefaultSegmentSize; i++ {
			binary.LittleEndian.PutUint16(buf[off:], fill[s])
			off += 2
		}
	}

	ev := event.New(len(buf))
	h := xtc.Header{TypeID: xtc.TypePNCCDFrame, Version: 1, PhysicalID: phys}
	if err := convertFrame(h, buf, ev, store, testLog()); err != nil {
		t.Fatalf("convertFrame: %v", err)
	}
	dev, err := ev.Device(event.PixelDetectorSet)
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	cam := dev.(*event.CameraDevice)
	det := cam.Detectors[0]
	if det.Columns != 2*DefaultSegmentSize || det.Rows != 2*DefaultSegmentSize {
		t.Fatalf("got %dx%d, want fallback size %dx%d", det.Columns, det.Rows, 2*DefaultSegmentSize, 2*DefaultSegmentSize)
	}
}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestReadLV(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, 5)
	buf = append(buf, []byte("hello")...)
	s, rest := readLV(buf)
	if s != "hello" {
		t.Errorf("got %q, want hello", s)
	}
	if len(rest) != 0 {
		t.Errorf("got %d leftover bytes, want 0", len(rest))
	}
}
