// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sink

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLetterCounterAdvancesLikeSpreadsheetColumns(t *testing.T) {
	cases := map[int]string{0: "a", 1: "b", 25: "z", 26: "aa", 27: "ab", 51: "az", 52: "ba"}
	for n, want := range cases {
		if got := letterCounter(n); got != want {
			t.Errorf("letterCounter(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestByteOffsetEncodeRoundsTripsSmallDeltas(t *testing.T) {
	values := []int32{10, 12, 9, 9, 100}
	encoded := byteOffsetEncode(values)
	// Every delta here fits in a signed byte, so the payload is exactly
	// len(values) bytes with no escape sequences.
	if len(encoded) != len(values) {
		t.Fatalf("encoded length = %d, want %d (no escapes expected)", len(encoded), len(values))
	}
}

func TestByteOffsetEncodeEscapesLargeDelta(t *testing.T) {
	values := []int32{0, 100000}
	encoded := byteOffsetEncode(values)
	// First value: one byte (0). Second: escape byte + int16 sentinel +
	// int32 delta = 1 + 1 + 2 + 4 = 8 bytes total.
	if len(encoded) != 8 {
		t.Fatalf("encoded length = %d, want 8", len(encoded))
	}
	if encoded[1] != 0x80 {
		t.Fatalf("expected escape byte 0x80, got %#x", encoded[1])
	}
}

func TestCBFWriterWritesFileAndDarkFrameOnClose(t *testing.T) {
	dir := t.TempDir()
	w := NewCBFWriter(nil, dir, "run1", 0)
	pixels := []float64{1, 2, 3, 4}
	if err := w.WriteFrame(42, 2, 2, pixels); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "run1_42.cbf")); err != nil {
		t.Fatalf("expected frame file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "run1_Dark.cbf")); err != nil {
		t.Fatalf("expected dark file: %v", err)
	}
}

func TestCBFWriterRotatesIntoSubdirectories(t *testing.T) {
	dir := t.TempDir()
	w := NewCBFWriter(nil, dir, "run1", 2)
	for id := uint64(0); id < 5; id++ {
		if err := w.WriteFrame(id, 1, 1, []float64{float64(id)}); err != nil {
			t.Fatalf("WriteFrame(%d): %v", id, err)
		}
	}
	// Files 0,1 in "a"; 2,3 in "b"; 4 in "c".
	if _, err := os.Stat(filepath.Join(dir, "a", "run1_0.cbf")); err != nil {
		t.Fatalf("expected file in subdir a: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "c", "run1_4.cbf")); err != nil {
		t.Fatalf("expected file in subdir c: %v", err)
	}
}
